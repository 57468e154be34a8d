package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"

	"symbiosing/internal/config"
	"symbiosing/internal/instruction"
)

var ErrNotFound = errors.New("schedule not found")

const (
	schedulePrefix = "schedules/"
	scheduleExt    = ".json"
)

var validName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 _.-]{0,127}$`)

// Client stores Instruction Set files under one bucket.
type Client struct {
	backend Provider
	bucket  string
}

func New(cfg *config.Config) *Client {
	var backend Provider

	if cfg.Storage.Provider == "s3" {
		s3Config := &aws.Config{
			Credentials:      credentials.NewStaticCredentials(cfg.Storage.KeyID, cfg.Storage.AppKey, ""),
			Region:           aws.String(cfg.Storage.Region),
			S3ForcePathStyle: aws.Bool(true),
		}
		if cfg.Storage.Endpoint != "" {
			s3Config.Endpoint = aws.String(cfg.Storage.Endpoint)
		}
		sess := session.Must(session.NewSession(s3Config))
		backend = NewS3Provider(sess)
	} else {
		backend = NewLocalProvider(cfg.Storage.LocalRoot)
	}

	return NewClient(backend, cfg.Storage.Bucket)
}

func NewClient(backend Provider, bucket string) *Client {
	return &Client{backend: backend, bucket: bucket}
}

func scheduleKey(name string) (string, error) {
	if !validName.MatchString(name) || strings.Contains(name, "..") {
		return "", fmt.Errorf("invalid schedule name %q", name)
	}
	return schedulePrefix + name + scheduleExt, nil
}

// ListSchedules returns the names of the stored schedules, sorted.
func (c *Client) ListSchedules() ([]string, error) {
	keys, err := c.backend.List(c.bucket, schedulePrefix)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, key := range keys {
		if !strings.HasSuffix(key, scheduleExt) {
			continue
		}
		rel := strings.TrimPrefix(key, schedulePrefix)
		if strings.Contains(rel, "/") {
			continue
		}
		names = append(names, strings.TrimSuffix(path.Base(rel), scheduleExt))
	}
	sort.Strings(names)
	return names, nil
}

// Export writes the set in the Instruction Set file format.
func (c *Client) Export(name string, set *instruction.Set) error {
	key, err := scheduleKey(name)
	if err != nil {
		return err
	}
	data, err := instruction.Encode(set)
	if err != nil {
		return err
	}
	return c.backend.Put(c.bucket, key, bytes.NewReader(data), "application/json")
}

// Import reads and decodes a stored schedule.
func (c *Client) Import(name string) (*instruction.Set, error) {
	key, err := scheduleKey(name)
	if err != nil {
		return nil, err
	}
	obj, err := c.backend.Get(c.bucket, key)
	if err != nil {
		return nil, err
	}
	defer obj.Body.Close()

	data, err := io.ReadAll(obj.Body)
	if err != nil {
		return nil, fmt.Errorf("read schedule %q: %w", name, err)
	}
	return instruction.Decode(data)
}

func (c *Client) Exists(name string) (bool, error) {
	key, err := scheduleKey(name)
	if err != nil {
		return false, err
	}
	return c.backend.Exists(c.bucket, key)
}

func (c *Client) Delete(name string) error {
	key, err := scheduleKey(name)
	if err != nil {
		return err
	}
	return c.backend.Delete(c.bucket, key)
}
