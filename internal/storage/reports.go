package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	vtypes "vetting/pkg/types"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ObjectAPI is the part of the S3 client the archive uses.
type ObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ReportArchive stores a copy of completed background check results in S3
// so the provider payload is retained after the provider purges it.
type ReportArchive struct {
	client     ObjectAPI
	bucketName string
	prefix     string
}

func NewReportArchive(client ObjectAPI, bucketName, prefix string) *ReportArchive {
	return &ReportArchive{
		client:     client,
		bucketName: bucketName,
		prefix:     prefix,
	}
}

type archivedReport struct {
	CheckID     string               `json:"checkId"`
	VolunteerID string               `json:"volunteerId"`
	ProviderID  string               `json:"providerId"`
	ExternalID  *string              `json:"externalId,omitempty"`
	CheckType   vtypes.CheckType     `json:"checkType"`
	Status      vtypes.CheckStatus   `json:"status"`
	Simulated   bool                 `json:"simulated"`
	Results     *vtypes.CheckResults `json:"results,omitempty"`
	CompletedAt *time.Time           `json:"completedAt,omitempty"`
}

// Key returns the object key a check's report is written to.
func (a *ReportArchive) Key(check *vtypes.BackgroundCheck) string {
	return path.Join(a.prefix, check.VolunteerID, fmt.Sprintf("%s-%s.json", check.ID, check.Status))
}

// Archive uploads the check's outcome and returns the object key.
func (a *ReportArchive) Archive(ctx context.Context, check *vtypes.BackgroundCheck) (string, error) {
	report := archivedReport{
		CheckID:     check.ID,
		VolunteerID: check.VolunteerID,
		ProviderID:  check.ProviderID,
		ExternalID:  check.ExternalID,
		CheckType:   check.CheckType,
		Status:      check.Status,
		Simulated:   check.Simulated,
		Results:     check.Results,
		CompletedAt: check.CompletedAt,
	}

	body, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}

	key := a.Key(check)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(a.bucketName),
		Key:                  aws.String(key),
		Body:                 bytes.NewReader(body),
		ContentType:          aws.String("application/json"),
		ServerSideEncryption: types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload report: %w", err)
	}

	return key, nil
}
