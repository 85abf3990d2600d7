package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexiqai/voice-translator/internal/errorsx"
)

type fakeObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	inputs  []*s3.PutObjectInput
	putErr  error
	headErr error
}

func (f *fakeObjects) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.objects == nil {
		f.objects = make(map[string][]byte)
	}
	f.objects[*in.Key] = data
	f.inputs = append(f.inputs, in)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeObjects) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	return &s3.HeadBucketOutput{}, nil
}

type fakePresigner struct {
	err     error
	expires time.Duration
}

func (f *fakePresigner) PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	if f.err != nil {
		return nil, f.err
	}
	var opts s3.PresignOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	f.expires = opts.Expires
	return &v4.PresignedHTTPRequest{
		URL:    "https://" + *in.Bucket + ".s3.example.com/" + *in.Key + "?X-Amz-Signature=abc",
		Method: http.MethodGet,
	}, nil
}

func TestS3Store_Put(t *testing.T) {
	objects := &fakeObjects{}
	presigner := &fakePresigner{}
	store := NewS3StoreWithClients(objects, presigner, "voices", 60*time.Second)

	url, err := store.Put(context.Background(), "models/uploads/abc.wav", []byte("RIFFdata"))
	require.NoError(t, err)

	assert.Equal(t, "https://voices.s3.example.com/models/uploads/abc.wav?X-Amz-Signature=abc", url.URL)
	assert.Equal(t, "models/uploads/abc.wav", url.Key)
	assert.Equal(t, 60, url.ExpiresInSeconds)
	assert.Equal(t, 60*time.Second, presigner.expires)

	require.Len(t, objects.inputs, 1)
	in := objects.inputs[0]
	assert.Equal(t, "voices", *in.Bucket)
	assert.Equal(t, "audio/wav", *in.ContentType)
	assert.Equal(t, types.ObjectCannedACLPublicRead, in.ACL)
	assert.Equal(t, []byte("RIFFdata"), objects.objects["models/uploads/abc.wav"])
}

func TestS3Store_UploadFailure(t *testing.T) {
	store := NewS3StoreWithClients(&fakeObjects{putErr: errors.New("access denied")}, &fakePresigner{}, "voices", 0)

	url, err := store.Put(context.Background(), "k.wav", []byte{1})
	assert.Nil(t, url)

	var storageErr *errorsx.StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, "upload", storageErr.Op)
	assert.Equal(t, "k.wav", storageErr.Key)
	assert.Equal(t, http.StatusInternalServerError, errorsx.HTTPStatus(err))
}

func TestS3Store_PresignFailure(t *testing.T) {
	store := NewS3StoreWithClients(&fakeObjects{}, &fakePresigner{err: errors.New("no credentials")}, "voices", 0)

	_, err := store.Put(context.Background(), "k.wav", []byte{1})
	var storageErr *errorsx.StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, "presign", storageErr.Op)
}

func TestS3Store_RefusesEmptyAudio(t *testing.T) {
	objects := &fakeObjects{}
	store := NewS3StoreWithClients(objects, &fakePresigner{}, "voices", 0)

	_, err := store.Put(context.Background(), "k.wav", nil)
	assert.True(t, errorsx.HasReason(err, errorsx.ReasonStorage))
	assert.Empty(t, objects.inputs)
}

func TestS3Store_DefaultExpiry(t *testing.T) {
	store := NewS3StoreWithClients(&fakeObjects{}, &fakePresigner{}, "voices", 0)
	url, err := store.Put(context.Background(), "k.wav", []byte{1})
	require.NoError(t, err)
	assert.Equal(t, 60, url.ExpiresInSeconds)
}

func TestS3Store_Ping(t *testing.T) {
	ok, err := NewS3StoreWithClients(&fakeObjects{}, &fakePresigner{}, "voices", 0).Ping(context.Background())
	assert.NoError(t, err)
	assert.True(t, ok)

	ok, err = NewS3StoreWithClients(&fakeObjects{headErr: errors.New("404")}, &fakePresigner{}, "voices", 0).Ping(context.Background())
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "models/uploads/abc.wav", ObjectKey("models/uploads", "abc"))
	assert.Equal(t, "models/uploads/abc.wav", ObjectKey("/models/uploads/", "abc"))
	assert.Equal(t, "abc.wav", ObjectKey("", "abc"))
	assert.NotEqual(t, ObjectKey("p", "a"), ObjectKey("p", "b"))
}
