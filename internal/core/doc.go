// Package core translates between object API data and Excel workbooks.
//
// The package holds the domain logic for the export and import cycles and
// is independent of the HTTP client, the dataset store and any transport.
// It can be driven by web handlers, the CLI or tests without modification.
//
// # Architecture
//
//   - Metadata: [BuildMetadataMap] resolves each configured attribute to its
//     API field, accepting names with " - " suffixes.
//   - Codec: [ToAPI] and [ToSpreadsheet] convert single values per field kind.
//   - Export: [BuildTable] turns API objects into a [Table], and
//     [WriteWorkbook] renders it with dropdowns, hidden lookup lists and
//     highlighting.
//   - Import: [ReadTable] reads a workbook, [TableValidator] reports
//     blocking errors and [RowTranslator] builds API payloads.
//   - Transport: [Paginator] reads every page, [BatchUploader] writes
//     objects in batches with retries on transient failures.
//   - Service: [Service] runs the full cycles and records them in the audit
//     log.
//
// # Export
//
//  1. Fetch metadata and build the [MetadataMap]
//  2. Fetch all objects, once per filter value when filters are given
//  3. Convert values with [ToSpreadsheet]; failures become warnings
//  4. Clear generated identifiers so they are not written back
//  5. Render the workbook
//
// # Import
//
//  1. Read the first sheet (or the "Data" sheet when present)
//  2. Validate; any error blocks the import
//  3. Translate rows, generating identifiers for new rows
//  4. Upload in batches; the first failed batch stops the run
//
// # Error Handling
//
// Technical errors are mapped to user-facing messages with [MapError].
// Codes are grouped by area: CFG (configuration), EXP (export), IMP
// (import), NET (API transport) and FILE (uploaded files).
//
// # Audit Logging
//
// Every export, validation and import is recorded through an [AuditStore].
// Imports are logged with high severity, exports with medium. Old entries
// are purged on a schedule, see [StartPurgeScheduler].
package core
