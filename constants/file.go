package constants

import "strings"

const (
	// QueueName is the queue the API service publishes CV uploads to.
	QueueName = "cv-parse"
	// JobNameParseCV is the job name producers attach to CV parse jobs.
	JobNameParseCV = "parse-cv"

	DefaultBucket   = "ats-files"
	CandidatesTable = "candidates"
	CVTextColumn    = "cv_text"
)

// Object store backends.
const (
	ObjectStoreSupabase = "supabase"
	ObjectStoreS3       = "s3"
)

// Record store backends.
const (
	RecordStoreSupabase = "supabase"
	RecordStorePostgres = "postgres"
	RecordStoreSQLite   = "sqlite"
)

// Text extraction engines.
const (
	EngineNative    = "native"
	EnginePdftotext = "pdftotext"
)

// PDFMagic is the header every PDF byte stream starts with.
const PDFMagic = "%PDF-"

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// IsPDF reports whether b starts with the PDF header, ignoring leading whitespace.
func IsPDF(b []byte) bool {
	s := strings.TrimLeft(string(b[:min(len(b), 1024)]), " \t\r\n\x00")
	return strings.HasPrefix(s, PDFMagic)
}
