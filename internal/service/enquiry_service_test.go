package service

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/noah-isme/sma-admissions-api/internal/dto"
	"github.com/noah-isme/sma-admissions-api/internal/models"
	appErrors "github.com/noah-isme/sma-admissions-api/pkg/errors"
)

type summaryStub struct {
	invalidations int
}

func (s *summaryStub) Invalidate(context.Context) {
	s.invalidations++
}

func newEnquiryFixture() (*EnquiryService, *memoryAuthority, *summaryStub) {
	authority := newMemoryAuthority()
	summary := &summaryStub{}
	svc := NewEnquiryService(enquiryRepoStub{authority}, nil, nil, nil, summary, EnquiryServiceConfig{PhoneRegion: "ID"})
	svc.now = func() time.Time { return time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC) }
	return svc, authority, summary
}

func seedEnquiry(authority *memoryAuthority, id string, status models.EnquiryStatus, owner string) {
	authority.enquiries[id] = &models.Enquiry{
		ID:            id,
		ApplicantName: "Rina Wulandari",
		GradeLevel:    "10",
		ParentName:    "Budi",
		ParentPhone:   "+6281234567890",
		ParentEmail:   "budi@example.com",
		Status:        status,
		CreatedBy:     &owner,
	}
}

func TestEnquiryServiceCreate(t *testing.T) {
	svc, authority, summary := newEnquiryFixture()

	enquiry, err := svc.Create(context.Background(), dto.CreateEnquiryRequest{
		ApplicantName: " Rina Wulandari ",
		GradeLevel:    "10",
		ParentName:    "Budi",
		ParentPhone:   "0812 3456 7890",
		ParentEmail:   "Budi@Example.com",
	}, parentActor)
	require.NoError(t, err)
	require.Equal(t, models.EnquiryStatusActive, enquiry.Status)
	require.Equal(t, "Rina Wulandari", enquiry.ApplicantName)
	require.Equal(t, "+6281234567890", enquiry.ParentPhone)
	require.Equal(t, "budi@example.com", enquiry.ParentEmail)
	require.Equal(t, parentActor.ID, *enquiry.CreatedBy)
	require.Contains(t, authority.enquiries, enquiry.ID)
	require.Equal(t, 1, summary.invalidations)
}

func TestEnquiryServiceCreateValidates(t *testing.T) {
	svc, authority, _ := newEnquiryFixture()
	ctx := context.Background()

	_, err := svc.Create(ctx, dto.CreateEnquiryRequest{ApplicantName: "Rina"}, parentActor)
	require.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = svc.Create(ctx, dto.CreateEnquiryRequest{
		ApplicantName: "Rina", GradeLevel: "10", ParentName: "Budi", ParentPhone: "not-a-number",
	}, parentActor)
	require.True(t, errors.Is(err, appErrors.ErrValidation))
	require.Contains(t, err.Error(), "parentPhone")
	require.Zero(t, authority.calls["enquiry.create"])
}

func TestEnquiryServiceSetStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("moves between open states", func(t *testing.T) {
		svc, authority, _ := newEnquiryFixture()
		seedEnquiry(authority, "enq-1", models.EnquiryStatusActive, parentActor.ID)

		enquiry, err := svc.SetStatus(ctx, "enq-1", dto.UpdateEnquiryStatusRequest{Status: "verified"}, staffActor)
		require.NoError(t, err)
		require.Equal(t, models.EnquiryStatusVerified, enquiry.Status)
		require.Equal(t, models.EnquiryStatusVerified, authority.enquiries["enq-1"].Status)

		enquiry, err = svc.SetStatus(ctx, "enq-1", dto.UpdateEnquiryStatusRequest{Status: models.EnquiryStatusActive}, staffActor)
		require.NoError(t, err)
		require.Equal(t, models.EnquiryStatusActive, enquiry.Status)
	})

	t.Run("converted is final", func(t *testing.T) {
		svc, authority, _ := newEnquiryFixture()
		seedEnquiry(authority, "enq-1", models.EnquiryStatusConverted, parentActor.ID)

		_, err := svc.SetStatus(ctx, "enq-1", dto.UpdateEnquiryStatusRequest{Status: models.EnquiryStatusActive}, staffActor)
		require.True(t, errors.Is(err, appErrors.ErrFinalized))
		require.Zero(t, authority.calls["enquiry.update_status"])
	})

	t.Run("converted is not settable", func(t *testing.T) {
		svc, authority, _ := newEnquiryFixture()
		seedEnquiry(authority, "enq-1", models.EnquiryStatusVerified, parentActor.ID)

		_, err := svc.SetStatus(ctx, "enq-1", dto.UpdateEnquiryStatusRequest{Status: models.EnquiryStatusConverted}, staffActor)
		require.True(t, errors.Is(err, appErrors.ErrInvalidTransition))
	})

	t.Run("unknown status", func(t *testing.T) {
		svc, authority, _ := newEnquiryFixture()
		seedEnquiry(authority, "enq-1", models.EnquiryStatusActive, parentActor.ID)

		_, err := svc.SetStatus(ctx, "enq-1", dto.UpdateEnquiryStatusRequest{Status: "ARCHIVED"}, staffActor)
		require.True(t, errors.Is(err, appErrors.ErrValidation))
	})

	t.Run("guard miss is conflict", func(t *testing.T) {
		svc, authority, _ := newEnquiryFixture()
		seedEnquiry(authority, "enq-1", models.EnquiryStatusActive, parentActor.ID)
		authority.fail["enquiry.update_status"] = sql.ErrNoRows

		_, err := svc.SetStatus(ctx, "enq-1", dto.UpdateEnquiryStatusRequest{Status: models.EnquiryStatusVerified}, staffActor)
		require.True(t, errors.Is(err, appErrors.ErrConflict))
	})
}

func TestEnquiryServiceConvert(t *testing.T) {
	svc, authority, summary := newEnquiryFixture()
	seedEnquiry(authority, "enq-1", models.EnquiryStatusVerified, parentActor.ID)

	resp, err := svc.Convert(context.Background(), "enq-1", dto.ConvertEnquiryRequest{
		DateOfBirth: "2010-04-12",
		Gender:      "FEMALE",
		Address:     "Jl. Merdeka 1",
	}, staffActor)
	require.NoError(t, err)

	require.Equal(t, models.EnquiryStatusConverted, resp.Enquiry.Status)
	require.Equal(t, resp.Admission.ID, *resp.Enquiry.ConvertedAdmissionID)
	require.Equal(t, models.AdmissionStatusPendingReview, resp.Admission.Status)
	require.Equal(t, "Budi", resp.Admission.GuardianName)
	require.Equal(t, "+6281234567890", resp.Admission.GuardianPhone)
	require.Equal(t, parentActor.ID, *resp.Admission.SubmittedBy)
	require.Equal(t, "enq-1", *resp.Admission.EnquiryID)

	stored := authority.admissions[resp.Admission.ID]
	require.NotNil(t, stored)
	require.Len(t, authority.docsOf(resp.Admission.ID), len(DefaultDocumentTemplate().Default))
	require.Len(t, authority.audits, 1)
	require.Equal(t, models.AuditActionEnquiryConvert, authority.audits[0].Action)
	require.Equal(t, resp.Admission.ID, authority.audits[0].AdmissionID)
	require.Equal(t, 1, summary.invalidations)
}

func TestEnquiryServiceConvertRefusals(t *testing.T) {
	ctx := context.Background()

	t.Run("not verified", func(t *testing.T) {
		svc, authority, _ := newEnquiryFixture()
		seedEnquiry(authority, "enq-1", models.EnquiryStatusInProgress, parentActor.ID)

		_, err := svc.Convert(ctx, "enq-1", dto.ConvertEnquiryRequest{}, staffActor)
		require.True(t, errors.Is(err, appErrors.ErrInvalidTransition))
		require.Zero(t, authority.calls["enquiry.convert"])
		require.Empty(t, authority.admissions)
	})

	t.Run("already converted", func(t *testing.T) {
		svc, authority, _ := newEnquiryFixture()
		seedEnquiry(authority, "enq-1", models.EnquiryStatusConverted, parentActor.ID)

		_, err := svc.Convert(ctx, "enq-1", dto.ConvertEnquiryRequest{}, staffActor)
		require.True(t, errors.Is(err, appErrors.ErrFinalized))
	})

	t.Run("bad date", func(t *testing.T) {
		svc, authority, _ := newEnquiryFixture()
		seedEnquiry(authority, "enq-1", models.EnquiryStatusVerified, parentActor.ID)

		_, err := svc.Convert(ctx, "enq-1", dto.ConvertEnquiryRequest{DateOfBirth: "12/04/2010"}, staffActor)
		require.True(t, errors.Is(err, appErrors.ErrValidation))
	})

	t.Run("concurrent conversion", func(t *testing.T) {
		svc, authority, _ := newEnquiryFixture()
		seedEnquiry(authority, "enq-1", models.EnquiryStatusVerified, parentActor.ID)
		authority.fail["enquiry.convert"] = sql.ErrNoRows

		_, err := svc.Convert(ctx, "enq-1", dto.ConvertEnquiryRequest{}, staffActor)
		require.True(t, errors.Is(err, appErrors.ErrConflict))
		require.Equal(t, appErrors.CategoryRejected, appErrors.Classify(err))
	})
}

func TestEnquiryServiceScopesParents(t *testing.T) {
	svc, authority, _ := newEnquiryFixture()
	seedEnquiry(authority, "enq-1", models.EnquiryStatusActive, parentActor.ID)
	seedEnquiry(authority, "enq-2", models.EnquiryStatusActive, otherParent.ID)
	ctx := context.Background()

	mine, page, err := svc.List(ctx, dto.EnquiryQuery{}, parentActor)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.Equal(t, "enq-1", mine[0].ID)
	require.Equal(t, 1, page.TotalCount)

	all, _, err := svc.List(ctx, dto.EnquiryQuery{}, staffActor)
	require.NoError(t, err)
	require.Len(t, all, 2)

	_, err = svc.Get(ctx, "enq-2", parentActor)
	require.True(t, errors.Is(err, appErrors.ErrNotFound))

	_, _, err = svc.List(ctx, dto.EnquiryQuery{}, Actor{Role: models.RoleParent})
	require.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}

func TestEnquiryServiceExport(t *testing.T) {
	svc, authority, _ := newEnquiryFixture()
	seedEnquiry(authority, "enq-1", models.EnquiryStatusActive, parentActor.ID)
	seedEnquiry(authority, "enq-2", models.EnquiryStatusVerified, otherParent.ID)
	ctx := context.Background()

	content, contentType, filename, err := svc.Export(ctx, dto.EnquiryQuery{}, "", staffActor)
	require.NoError(t, err)
	require.Equal(t, "text/csv", contentType)
	require.Equal(t, "enquiries-20260701.csv", filename)
	records, err := csv.NewReader(bytes.NewReader(content)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, "ID", records[0][0])
	require.Equal(t, "enq-1", records[1][0])

	content, _, filename, err = svc.Export(ctx, dto.EnquiryQuery{}, "XLSX", parentActor)
	require.NoError(t, err)
	require.Equal(t, "enquiries-20260701.xlsx", filename)
	book, err := excelize.OpenReader(bytes.NewReader(content))
	require.NoError(t, err)
	defer book.Close()
	rows, err := book.GetRows(book.GetSheetName(0))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	_, _, _, err = svc.Export(ctx, dto.EnquiryQuery{}, "pdf", staffActor)
	require.True(t, errors.Is(err, appErrors.ErrValidation))
}
