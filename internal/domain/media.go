package domain

// MediaUpload is a validated, typed media payload ready for upload.
// It is produced by the media pipeline; the orchestrator never inspects
// the bytes again.
type MediaUpload struct {
	Bytes         []byte
	FileExtension string
	ContentType   ContentType
}
