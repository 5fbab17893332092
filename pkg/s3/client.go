package s3

import (
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/client"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

type Config struct {
	Endpoint           string
	Region             string
	AccessKey          string
	SecretKey          string
	MaxRetries         int
	ReadTimeoutSeconds int
}

func CreateS3Client(config *Config) (*s3.S3, error) {
	if config == nil {
		return nil, fmt.Errorf("s3 configuration is required")
	}

	readTimeout := time.Duration(config.ReadTimeoutSeconds) * time.Second
	if readTimeout <= 0 {
		readTimeout = 60 * time.Second
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			ResponseHeaderTimeout: readTimeout,
			ExpectContinueTimeout: 5 * time.Second,
			MaxIdleConns:          10,
			IdleConnTimeout:       90 * time.Second,
		},
	}

	retryer := client.DefaultRetryer{
		NumMaxRetries: config.MaxRetries,
		MinRetryDelay: 2 * time.Second,
		MaxRetryDelay: 30 * time.Second,
	}

	awsConfig := &aws.Config{
		Region:           aws.String(config.Region),
		S3ForcePathStyle: aws.Bool(true),
		HTTPClient:       httpClient,
		Retryer:          retryer,
	}
	if config.Endpoint != "" {
		awsConfig.Endpoint = aws.String(config.Endpoint)
	}
	if config.AccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(config.AccessKey, config.SecretKey, "")
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("create aws session: %w", err)
	}

	return s3.New(sess), nil
}
