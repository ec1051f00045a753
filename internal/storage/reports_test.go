package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	vtypes "vetting/pkg/types"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObjects struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakeObjects) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = params
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.body = body
	return &s3.PutObjectOutput{}, nil
}

func completedCheck() *vtypes.BackgroundCheck {
	completed := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	external := "rep_1"
	return &vtypes.BackgroundCheck{
		ID:          "chk_1",
		VolunteerID: "V1",
		ProviderID:  "checkr",
		ExternalID:  &external,
		CheckType:   vtypes.CheckTypeBasic,
		Status:      vtypes.CheckStatusRejected,
		Results: &vtypes.CheckResults{
			Overall: vtypes.ResultDecisionFail,
			Findings: []vtypes.Finding{{
				Category:      "criminal",
				Description:   "felony conviction",
				Severity:      vtypes.FindingSeverityHigh,
				Disqualifying: true,
			}},
		},
		CompletedAt: &completed,
	}
}

func TestArchive(t *testing.T) {
	objects := &fakeObjects{}
	archive := NewReportArchive(objects, "vetting-reports", "background-checks")

	key, err := archive.Archive(context.Background(), completedCheck())
	require.NoError(t, err)
	assert.Equal(t, "background-checks/V1/chk_1-rejected.json", key)

	require.NotNil(t, objects.input)
	assert.Equal(t, "vetting-reports", aws.ToString(objects.input.Bucket))
	assert.Equal(t, key, aws.ToString(objects.input.Key))
	assert.Equal(t, "application/json", aws.ToString(objects.input.ContentType))
	assert.Equal(t, types.ServerSideEncryptionAes256, objects.input.ServerSideEncryption)

	var report archivedReport
	require.NoError(t, json.Unmarshal(objects.body, &report))
	assert.Equal(t, "chk_1", report.CheckID)
	assert.Equal(t, vtypes.CheckStatusRejected, report.Status)
	require.NotNil(t, report.Results)
	assert.True(t, report.Results.HasDisqualifyingFinding())
}

func TestArchiveUploadError(t *testing.T) {
	archive := NewReportArchive(&fakeObjects{err: errors.New("access denied")}, "vetting-reports", "")

	_, err := archive.Archive(context.Background(), completedCheck())
	assert.ErrorContains(t, err, "access denied")
	assert.Equal(t, "V1/chk_1-rejected.json", archive.Key(completedCheck()))
}
