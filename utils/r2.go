// utils/r2.go
package utils

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// MaxIconSize caps badge icon uploads.
const MaxIconSize = 2 * 1024 * 1024

var r2Client *s3.Client
var r2Bucket string
var cdnBaseURL string

var iconTypes = map[string]string{
	"image/png":     ".png",
	"image/svg+xml": ".svg",
	"image/webp":    ".webp",
	"image/jpeg":    ".jpg",
}

func InitR2() error {
	accountID := os.Getenv("CLOUDFLARE_ACCOUNT_ID")
	accessKeyID := os.Getenv("R2_ACCESS_KEY_ID")
	accessKeySecret := os.Getenv("R2_ACCESS_KEY_SECRET")
	r2Bucket = os.Getenv("R2_BUCKET_NAME")
	cdnBaseURL = strings.TrimRight(os.Getenv("CDN_BASE_URL"), "/")
	if accountID == "" || r2Bucket == "" {
		return fmt.Errorf("CLOUDFLARE_ACCOUNT_ID and R2_BUCKET_NAME are required")
	}
	if cdnBaseURL == "" {
		cdnBaseURL = fmt.Sprintf("https://%s.r2.cloudflarestorage.com/%s", accountID, r2Bucket)
	}

	cfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion("auto"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKeyID, accessKeySecret, "",
		)),
	)
	if err != nil {
		return fmt.Errorf("failed to load R2 config: %w", err)
	}

	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", accountID)
	r2Client = s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})
	LogSuccess("🪣 R2 storage ready (bucket %s)", r2Bucket)
	return nil
}

// R2Ready reports whether InitR2 succeeded.
func R2Ready() bool {
	return r2Client != nil
}

// BadgeIconKey builds the object key for a badge icon, e.g. "badges/task_master-<uuid>.png".
func BadgeIconKey(badgeCode, contentType string) (string, error) {
	ext, ok := iconTypes[contentType]
	if !ok {
		return "", fmt.Errorf("unsupported icon type %q", contentType)
	}
	code := strings.ToLower(strings.TrimSpace(badgeCode))
	if code == "" {
		code = "badge"
	}
	return fmt.Sprintf("badges/%s-%s%s", filepath.Base(code), uuid.NewString(), ext), nil
}

// UploadBadgeIcon validates an icon and stores it in R2, returning its public URL.
func UploadBadgeIcon(ctx context.Context, fileHeader *multipart.FileHeader, badgeCode string) (string, error) {
	if !R2Ready() {
		return "", fmt.Errorf("icon storage is not configured")
	}
	if fileHeader.Size > MaxIconSize {
		return "", fmt.Errorf("icon too large: %d bytes (max %d)", fileHeader.Size, MaxIconSize)
	}
	contentType := fileHeader.Header.Get("Content-Type")
	key, err := BadgeIconKey(badgeCode, contentType)
	if err != nil {
		return "", err
	}

	file, err := fileHeader.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, file); err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	_, err = r2Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(r2Bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(buf.Bytes()),
		ContentType:  aws.String(contentType),
		CacheControl: aws.String("public, max-age=31536000, immutable"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to R2: %w", err)
	}

	return fmt.Sprintf("%s/%s", cdnBaseURL, key), nil
}
