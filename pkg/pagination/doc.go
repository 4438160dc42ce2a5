// Package pagination decides whether a decoded response has another page and
// how to request it.
//
// Upstream APIs use three continuation idioms. The caller picks one per
// operation through Shape.Style instead of the client guessing from field
// presence:
//
//   - StyleCursorURL: the body carries a self-contained URL for the next page
//     (NAACCR "next"). The original query parameters are dropped.
//   - StyleToken: the body carries an opaque token that is echoed back as a
//     query parameter, all other parameters unchanged
//     (ClinicalTrials.gov "nextPageToken" -> "pageToken").
//   - StyleOffset: the body carries a total count; the next request advances
//     the offset parameter by the number of items just received
//     (OpenFDA "skip", USPTO/SEER "offset", NCBI "retstart").
//
// StyleNone marks single-page operations.
//
// Example usage:
//
//	shape := pagination.Offset("results", "meta.results.total", "skip")
//	items, marker, err := shape.Extract(body, params)
//	step, err := shape.Next(currentURL, params, marker)
//	if !step.Done {
//		// issue the next request with step.URL / step.Params
//	}
//
// A bare JSON list is always terminal whatever the style. An offset page with
// zero items is terminal even when the reported total claims more, so
// inconsistent server counts cannot cause an endless loop.
package pagination
