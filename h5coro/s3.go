package h5coro

// Object-store backend: positional reads become ranged GETs. Region and
// credentials come from the ambient AWS configuration.

import (
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

type s3Driver struct {
	svc    *s3.S3
	bucket string
	key    string
}

func openS3Driver(resource string) (*s3Driver, error) {
	// <bucket>/<path_to_file>/<filename>
	slash := strings.IndexByte(resource, '/')
	if slash <= 0 || slash == len(resource)-1 {
		logger.Error("invalid S3 url:", resource)
		return nil, ErrInvalidURL
	}

	sess, err := session.NewSession()
	if err != nil {
		logger.Error("creating AWS session:", err)
		return nil, ErrOpenFailed
	}

	return &s3Driver{
		svc:    s3.New(sess),
		bucket: resource[:slash],
		key:    resource[slash+1:],
	}, nil
}

func (d *s3Driver) read(p []byte, pos uint64) (int64, error) {
	if len(p) == 0 {
		return 0, nil
	}

	byteRange := fmt.Sprintf("bytes=%d-%d", pos, pos+uint64(len(p))-1)
	out, err := d.svc.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.key),
		Range:  aws.String(byteRange),
	})
	if err != nil {
		logger.Error("ranged get failed:", d.bucket, d.key, byteRange, err)
		return 0, err
	}
	defer out.Body.Close()

	// The object may end inside the requested range; drain what is there.
	var total int64
	for total < int64(len(p)) {
		n, rerr := out.Body.Read(p[total:])
		total += int64(n)
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return total, rerr
		}
	}
	return total, nil
}

func (d *s3Driver) close() error {
	return nil
}
