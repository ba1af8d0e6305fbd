// Package core provides the domain logic for transit record imports.
//
// This package holds everything that is independent of transport and
// persistence. It is used by the importer, the HTTP handlers, the CLI, and
// tests without modification.
//
// # Architecture
//
// The package is organized around a few key concepts:
//
//   - Field Dictionary: [Columns] maps the Cyrillic export headers to
//     semantic field names and value types.
//   - Parser: [Parser.Parse] turns ';'-delimited text into [Record] values,
//     reporting bad rows as data instead of failing.
//   - Classifier: a pluggable [Classifier] tags each record with an
//     [AnomalyProbability] and a set of [AnomalyType] values.
//   - Query: [Query] filters, searches, sorts, and pages a record slice.
//   - Streaming: [ReadText] decodes an upload to UTF-8 with a size limit.
//
// # Parsing
//
// The first line is the header row. Every later line is split on ';' with
// simple quote stripping. A row whose column count differs from the header
// is rejected with its 1-based line number:
//
//	result := core.Parse(text)
//	for _, msg := range result.Errors {
//	    log.Println(msg) // "Line 7: expected 43 columns, got 41"
//	}
//
// Dates in DD.MM.YYYY form are normalized to ISO timestamps; numbers accept
// a comma decimal separator.
//
// # Querying
//
// Filter groups combine with AND, values within a group with OR. Text
// columns sort with Russian collation, numeric columns by value:
//
//	page := core.Query(records, core.QueryParams{
//	    Filter: core.FilterSet{Risk: []core.RiskLevel{core.RiskHigh}},
//	    Sort:   core.SortState{Column: "total_weight", Direction: core.SortDesc},
//	})
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - FILE001-FILE005: File errors (size, type, missing file)
//   - IMP001-IMP006: Import errors (mode, busy, no valid rows, cancelled)
//   - STO001-STO003: Storage errors (quota, unavailable backend)
//   - QRY001-QRY002: Query errors (unknown record, bad parameter)
//   - BKD001-BKD002: Backend facade errors
package core
