package storage

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore_PutGet(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "sessions/abc/notes.pdf", []byte("%PDF-1.4"), ""))

	data, err := store.Get(ctx, "sessions/abc/notes.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4"), data)
}

func TestLocalStore_Missing(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "nope.pdf")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStore_RejectsTraversal(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "../../etc/passwd")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

type fakeS3 struct {
	s3iface.S3API
	objects map[string][]byte
}

func (f *fakeS3) GetObjectWithContext(_ aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.StringValue(in.Key)]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "not found", nil)
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObjectWithContext(_ aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.StringValue(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func TestSpacesStore_GetPut(t *testing.T) {
	client := &fakeS3{objects: map[string][]byte{}}
	store := NewSpacesStoreWithClient(client, "uploads")
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "deck.pptx", []byte("zip"), ""))
	data, err := store.Get(ctx, "deck.pptx")
	require.NoError(t, err)
	assert.Equal(t, []byte("zip"), data)

	_, err = store.Get(ctx, "missing.pdf")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "application/pdf", ContentType("a.PDF"))
	assert.Equal(t, "image/webp", ContentType("scan.webp"))
	assert.Equal(t, "application/octet-stream", ContentType("blob"))
}
