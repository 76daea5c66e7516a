package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
	gonanoid "github.com/matoous/go-nanoid/v2"

	cfg "github.com/crossposthq/crosspost-api/configs"
)

var allowedImageTypes = map[string]struct{}{
	"jpg": {}, "jpeg": {}, "png": {},
}

type MediaService interface {
	UploadImage(ctx context.Context, file *multipart.FileHeader) (url, mime string, err error)
}

type mediaService struct {
	config   cfg.Config
	s3Client *s3.Client
}

func NewMediaService(ctx context.Context, config cfg.Config) (MediaService, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(config.R2.AccessKey, config.R2.SecretKey, "")),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", config.R2.AccountID))
	})

	return &mediaService{config: config, s3Client: client}, nil
}

// UploadImage validates the upload is an allowed image type, stores it in
// R2 under a generated key and returns the public URL plus detected mime.
func (m *mediaService) UploadImage(ctx context.Context, file *multipart.FileHeader) (string, string, error) {
	fileContent, err := file.Open()
	if err != nil {
		return "", "", fmt.Errorf("error opening file: %w", err)
	}
	defer fileContent.Close()

	fileBytes, err := io.ReadAll(fileContent)
	if err != nil {
		return "", "", fmt.Errorf("error reading file content: %w", err)
	}

	fileType, err := filetype.Match(fileBytes)
	if err != nil || fileType == types.Unknown {
		return "", "", fmt.Errorf("unsupported file type: %w", err)
	}
	if _, ok := allowedImageTypes[fileType.Extension]; !ok {
		return "", "", fmt.Errorf("file type %s is not allowed", fileType.Extension)
	}

	key, err := gonanoid.New()
	if err != nil {
		slog.Info(err.Error())
		return "", "", err
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(m.config.R2.BucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(fileBytes),
		ContentType: aws.String(fileType.MIME.Value),
	}

	if _, err := m.s3Client.PutObject(ctx, input); err != nil {
		slog.Info(err.Error())
		return "", "", err
	}

	return fmt.Sprintf("%s/%s", m.config.R2.PublicURL, key), fileType.MIME.Value, nil
}
