package attachments

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammar1510/tutorchat/internal/apperr"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

type fakeUploader struct {
	calls  int
	err    error
	inputs []*s3.PutObjectInput
	bodies [][]byte
}

func (f *fakeUploader) Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	body, _ := io.ReadAll(input.Body)
	f.inputs = append(f.inputs, input)
	f.bodies = append(f.bodies, body)
	return &manager.UploadOutput{Key: input.Key}, nil
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "application/pdf", ContentType([]byte("whatever"), "application/pdf"))
	assert.Equal(t, "image/png", ContentType(pngHeader, ""))
	assert.Equal(t, "image/png", ContentType(pngHeader, "application/octet-stream"))
	assert.True(t, strings.HasPrefix(ContentType([]byte("plain notes"), ""), "text/plain"))
}

func TestObjectKey(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	key := ObjectKey("../../My Notes (final).pdf", now)
	assert.True(t, strings.HasPrefix(key, "attachments/2024/05/01/"))
	assert.True(t, strings.HasSuffix(key, "-My_Notes_final.pdf"))
	assert.NotContains(t, key, "..")

	assert.True(t, strings.HasSuffix(ObjectKey("???", now), "-file"))
	assert.NotEqual(t, ObjectKey("a.txt", now), ObjectKey("a.txt", now))
}

func TestLimitsCheck(t *testing.T) {
	limits := Limits{MaxFiles: 2, MaxBytes: 100}

	assert.NoError(t, limits.Check(nil))
	assert.NoError(t, limits.Check([]int64{10, 100}))
	assert.True(t, apperr.Is(limits.Check([]int64{1, 1, 1}), apperr.CodeValidation))
	assert.True(t, apperr.Is(limits.Check([]int64{101}), apperr.CodeValidation))
	assert.True(t, apperr.Is(limits.Check([]int64{0}), apperr.CodeValidation))
}

func TestLimitsMaxRequestBytes(t *testing.T) {
	assert.Equal(t, int64(2*100+formOverhead), Limits{MaxFiles: 2, MaxBytes: 100}.MaxRequestBytes())
	assert.Equal(t, int64(DefaultMaxFiles*100+formOverhead), Limits{MaxBytes: 100}.MaxRequestBytes())
	assert.Zero(t, Limits{MaxFiles: 2}.MaxRequestBytes())
}

func TestS3StoreUpload(t *testing.T) {
	up := &fakeUploader{}
	store := newS3Store(up, S3Options{Bucket: "tutor-files", Region: "eu-west-1"})

	url, err := store.Store(context.Background(), pngHeader, "", "diagram.png")
	require.NoError(t, err)

	require.Len(t, up.inputs, 1)
	input := up.inputs[0]
	assert.Equal(t, "tutor-files", aws.ToString(input.Bucket))
	assert.Equal(t, "image/png", aws.ToString(input.ContentType))
	assert.Equal(t, pngHeader, up.bodies[0])
	assert.Equal(t, "https://tutor-files.s3.eu-west-1.amazonaws.com/"+aws.ToString(input.Key), url)
}

func TestS3StorePublicBaseURL(t *testing.T) {
	up := &fakeUploader{}
	store := newS3Store(up, S3Options{Bucket: "tutor-files", Region: "eu-west-1", PublicBaseURL: "https://cdn.example.com/"})

	url, err := store.Store(context.Background(), []byte("%PDF-1.4"), "application/pdf", "notes.pdf")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/"+aws.ToString(up.inputs[0].Key), url)
}

func TestS3StoreBreakerOpens(t *testing.T) {
	up := &fakeUploader{err: errors.New("connection reset")}
	store := newS3Store(up, S3Options{Bucket: "tutor-files", Region: "eu-west-1", MaxFailures: 2, OpenTimeout: time.Minute})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := store.Store(ctx, []byte("data"), "text/plain", "a.txt")
		assert.True(t, apperr.Is(err, apperr.CodeUpload))
	}
	assert.Equal(t, 2, up.calls)

	// Open breaker fails fast without reaching the bucket
	_, err := store.Store(ctx, []byte("data"), "text/plain", "a.txt")
	assert.True(t, apperr.Is(err, apperr.CodeUpload))
	assert.Equal(t, 2, up.calls)
}

func TestDisabledStore(t *testing.T) {
	url, err := Disabled{}.Store(context.Background(), []byte("data"), "", "a.txt")
	assert.Empty(t, url)
	assert.True(t, apperr.Is(err, apperr.CodeUpload))
}
