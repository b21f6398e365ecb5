package storage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type fakeS3 struct {
	input *s3.PutObjectInput
	err   error
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{ETag: aws.String(`"etag-1"`)}, nil
}

func TestAWSS3StorageUpload(t *testing.T) {
	api := &fakeS3{}
	s := &AWSS3Storage{client: api, bucket: "tripchat-archive", region: "ap-south-1"}

	body := `{"trip_id":"t1","messages":[]}`
	resp, err := s.Upload(context.Background(), &UploadRequest{
		Key:         "transcripts/t1.json",
		Reader:      strings.NewReader(body),
		ContentType: "application/json",
		Size:        int64(len(body)),
		Metadata:    map[string]string{"trip_id": "t1"},
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	if resp.URL != "https://tripchat-archive.s3.ap-south-1.amazonaws.com/transcripts/t1.json" {
		t.Errorf("URL = %q", resp.URL)
	}
	if resp.ETag != `"etag-1"` || resp.Size != int64(len(body)) {
		t.Errorf("resp = %+v", resp)
	}
	if api.input.ServerSideEncryption != s3types.ServerSideEncryptionAes256 {
		t.Errorf("ServerSideEncryption = %q", api.input.ServerSideEncryption)
	}
	if aws.ToInt64(api.input.ContentLength) != int64(len(body)) || api.input.Metadata["trip_id"] != "t1" {
		t.Errorf("input = %+v", api.input)
	}
	if api.input.CacheControl != nil {
		t.Errorf("CacheControl = %q, want unset", aws.ToString(api.input.CacheControl))
	}
}

func TestAWSS3StorageUploadError(t *testing.T) {
	s := &AWSS3Storage{client: &fakeS3{err: errors.New("AccessDenied")}, bucket: "b", region: "us-east-1"}
	_, err := s.Upload(context.Background(), &UploadRequest{Key: "k", Reader: strings.NewReader("x")})
	if err == nil || !strings.Contains(err.Error(), "AccessDenied") {
		t.Fatalf("err = %v", err)
	}
}
