package database

import (
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// NewS3Client builds the client MediaStore uploads attachments through.
// Region and endpoint follow the same environment-variable convention as
// the rest of pkg/config; credentials come from the standard
// AWS_ACCESS_KEY_ID/AWS_SECRET_ACCESS_KEY pair (static, since the gateway
// runs as a single long-lived service account, not per-request STS).
func NewS3Client() *s3.Client {
	region := getEnvOr("AWS_REGION", "us-east-1")
	endpoint := os.Getenv("S3_ENDPOINT_URL")

	cfg := aws.Config{
		Region: region,
		Credentials: credentials.NewStaticCredentialsProvider(
			os.Getenv("AWS_ACCESS_KEY_ID"),
			os.Getenv("AWS_SECRET_ACCESS_KEY"),
			"",
		),
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
}

func getEnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
