package entity

// RawDocument is an uploaded receipt as fetched from its source. The pipeline
// only reads it.
type RawDocument struct {
	Ref         string
	ContentType string
	Data        []byte
}
