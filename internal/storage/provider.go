package storage

import (
	"io"
	"time"
)

// Provider is a flat key/value blob store. Keys use forward slashes.
type Provider interface {
	List(bucket, prefix string) ([]string, error)
	Get(bucket, key string) (*Object, error)
	Put(bucket, key string, body io.ReadSeeker, contentType string) error
	Delete(bucket, key string) error
	Exists(bucket, key string) (bool, error)
}

// Object is the provider-agnostic representation of a stored file.
type Object struct {
	Body          io.ReadCloser
	ContentLength int64
	ContentType   string
	LastModified  time.Time
}
