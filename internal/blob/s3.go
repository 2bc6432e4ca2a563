// Package blob はロゴなどのバイナリをオブジェクトストレージに保存する。
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ErrForeignURL は削除対象のURLがこのストアの公開URLではないことを示す。
var ErrForeignURL = errors.New("url does not belong to this blob store")

// Store はオブジェクトストレージの操作インターフェース。
type Store interface {
	// Put はbodyを公開オブジェクトとして保存し、公開URLを返す。
	Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
	// Delete は公開URLで指定されたオブジェクトを削除する。
	Delete(ctx context.Context, url string) error
}

// Object は一覧で返されるオブジェクトの情報。
type Object struct {
	Key          string
	URL          string
	LastModified time.Time
}

// Lister はプレフィックス配下のオブジェクトを列挙する。
type Lister interface {
	List(ctx context.Context, prefix string) ([]Object, error)
}

// objectAPI はS3クライアントのうち使用する操作のみを抽出したインターフェース。
type objectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Config はS3ストアの設定。
type S3Config struct {
	Bucket        string
	Region        string
	Endpoint      string // MinIO等のS3互換ストレージを使う場合に指定する
	PublicBaseURL string
}

// S3Store はS3（または互換ストレージ）を使用したStore実装。
type S3Store struct {
	client        objectAPI
	bucket        string
	publicBaseURL string
}

// NewS3Store は環境の認証情報を読み込み、S3Storeを生成する。
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return newS3Store(client, cfg.Bucket, cfg.PublicBaseURL), nil
}

func newS3Store(client objectAPI, bucket, publicBaseURL string) *S3Store {
	return &S3Store{
		client:        client,
		bucket:        bucket,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}
}

// Put はbodyを公開読み取り可能なオブジェクトとして保存する。
// 署名にContent-Lengthが必要なため、bodyは全てメモリに読み込む。
func (s *S3Store) Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("failed to read blob body: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
		ACL:           types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		return "", fmt.Errorf("failed to put object %s: %w", key, err)
	}

	return s.publicBaseURL + "/" + key, nil
}

// Delete は公開URLからキーを求めてオブジェクトを削除する。
func (s *S3Store) Delete(ctx context.Context, url string) error {
	key, err := s.keyFromURL(url)
	if err != nil {
		return err
	}

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}
	return nil
}

// List はprefix配下の全オブジェクトをページングしながら取得する。
func (s *S3Store) List(ctx context.Context, prefix string) ([]Object, error) {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	var objects []Object
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects under %s: %w", prefix, err)
		}
		for _, o := range page.Contents {
			key := aws.ToString(o.Key)
			objects = append(objects, Object{
				Key:          key,
				URL:          s.publicBaseURL + "/" + key,
				LastModified: aws.ToTime(o.LastModified),
			})
		}
	}
	return objects, nil
}

func (s *S3Store) keyFromURL(url string) (string, error) {
	key, ok := strings.CutPrefix(url, s.publicBaseURL+"/")
	if !ok || key == "" {
		return "", fmt.Errorf("%w: %s", ErrForeignURL, url)
	}
	return key, nil
}

// compile-time interface check
var (
	_ Store  = (*S3Store)(nil)
	_ Lister = (*S3Store)(nil)
)
