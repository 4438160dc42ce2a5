package cli

import (
	"github.com/spf13/cobra"

	"github.com/Sternrassler/biofetch/pkg/client"
	"github.com/Sternrassler/biofetch/pkg/pagination"
)

// requestFlags are the per-request flags shared by page and all.
type requestFlags struct {
	params        []string
	format        string
	style         string
	itemsField    string
	nextField     string
	tokenField    string
	tokenParam    string
	totalField    string
	offsetParam   string
	notFoundEmpty bool
}

func (f *requestFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringArrayVarP(&f.params, "param", "p", nil, "query parameter key=value (repeatable)")
	flags.StringVar(&f.format, "format", "", "response format (json, csv, text, binary)")
	flags.StringVar(&f.style, "style", "", "pagination style (none, cursor, token, offset)")
	flags.StringVar(&f.itemsField, "items", "", "field holding the items (dotted path)")
	flags.StringVar(&f.nextField, "next", "", "field holding the next-page URL (cursor style)")
	flags.StringVar(&f.tokenField, "token-field", "", "field holding the page token (token style)")
	flags.StringVar(&f.tokenParam, "token-param", "", "query parameter the page token is sent in (token style)")
	flags.StringVar(&f.totalField, "total", "", "field holding the total count (offset style)")
	flags.StringVar(&f.offsetParam, "offset-param", "", "query parameter advanced per page (offset style)")
	flags.BoolVar(&f.notFoundEmpty, "not-found-empty", false, "treat 404 as an empty result")
}

// build derives the request for path, layering the flags over the session
// defaults.
func (f *requestFlags) build(s *session, path string) (client.Request, error) {
	params, err := parseParams(f.params)
	if err != nil {
		return client.Request{}, err
	}
	req := s.request(path, params)

	if f.format != "" {
		format, err := client.ParseFormat(f.format)
		if err != nil {
			return client.Request{}, err
		}
		req.Format = format
	}

	shape := req.Shape
	if f.style != "" {
		style, err := pagination.ParseStyle(f.style)
		if err != nil {
			return client.Request{}, err
		}
		shape.Style = style
	}
	override(&shape.ItemsField, f.itemsField)
	override(&shape.NextField, f.nextField)
	override(&shape.TokenField, f.tokenField)
	override(&shape.TokenParam, f.tokenParam)
	override(&shape.TotalField, f.totalField)
	override(&shape.OffsetParam, f.offsetParam)
	req = req.WithShape(shape)

	if f.notFoundEmpty {
		req.NotFoundIsEmpty = true
	}
	return req, nil
}

func override(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

func (a *app) newPageCmd() *cobra.Command {
	var rf requestFlags

	cmd := &cobra.Command{
		Use:   "page <path-or-url>",
		Short: "Fetch a single page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			req, err := rf.build(s, args[0])
			if err != nil {
				return err
			}

			page, err := s.client.FetchPage(cmd.Context(), req)
			if err != nil {
				return err
			}
			return a.renderPage(page)
		},
	}
	rf.register(cmd)
	return cmd
}

func (a *app) newAllCmd() *cobra.Command {
	var (
		rf        requestFlags
		maxPages  int
		limit     int
		pageDelay string
	)

	cmd := &cobra.Command{
		Use:   "all <path-or-url>",
		Short: "Follow pagination and fetch every page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			req, err := rf.build(s, args[0])
			if err != nil {
				return err
			}

			opts := []client.PageOption{client.MaxPages(maxPages), client.ItemCap(limit)}
			if cmd.Flags().Changed("page-delay") {
				d, err := parseDuration(pageDelay)
				if err != nil {
					return err
				}
				opts = append(opts, client.PageDelay(d))
			}

			result, err := s.client.FetchAll(cmd.Context(), req, opts...)
			if err != nil {
				if result != nil && len(result.Pages) > 0 {
					s.logger.Warn().
						Int("pages", len(result.Pages)).
						Int("items", result.Len()).
						Msg("Fetch aborted after partial result")
				}
				return err
			}
			return a.renderResult(result)
		},
	}
	rf.register(cmd)
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "stop after this many pages (0 = no limit)")
	cmd.Flags().IntVar(&limit, "limit", 0, "stop after this many items (0 = no limit)")
	cmd.Flags().StringVar(&pageDelay, "page-delay", "", "delay between pages (e.g. 250ms)")
	return cmd
}
