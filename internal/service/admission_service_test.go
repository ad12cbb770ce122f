package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-admissions-api/internal/dto"
	"github.com/noah-isme/sma-admissions-api/internal/models"
	"github.com/noah-isme/sma-admissions-api/pkg/cache"
	appErrors "github.com/noah-isme/sma-admissions-api/pkg/errors"
)

type admissionFixture struct {
	authority *memoryAuthority
	locker    *lockerStub
	notifier  *notifierStub
	store     *objectStoreStub
	svc       *AdmissionService
}

func newAdmissionFixture() *admissionFixture {
	f := &admissionFixture{
		authority: newMemoryAuthority(),
		locker:    newLockerStub(),
		notifier:  &notifierStub{},
		store:     newObjectStoreStub(),
	}
	f.svc = NewAdmissionService(admissionRepoStub{f.authority}, documentRepoStub{f.authority}, auditRepoStub{f.authority}, nil, nil,
		AdmissionServiceConfig{PhoneRegion: "ID", PhotoMaxDimension: 64},
		WithAdmissionStore(f.store),
		WithDecisionNotifier(f.notifier),
		WithAdmissionLocker(f.locker),
	)
	return f
}

func (f *admissionFixture) seed(status models.AdmissionStatus, docs ...models.DocumentRequirement) *models.Admission {
	owner := parentActor.ID
	return f.authority.addAdmission(models.Admission{
		ID:            "adm-1",
		ApplicantName: "Rina Wulandari",
		Grade:         "10",
		GuardianName:  "Budi",
		GuardianEmail: "budi@example.com",
		Status:        status,
		SubmittedBy:   &owner,
	}, docs...)
}

func TestNewAdmissionServiceOptions(t *testing.T) {
	svc := NewAdmissionService(nil, nil, nil, nil, nil, AdmissionServiceConfig{}, WithSummaryInvalidator(nil))
	require.NotNil(t, svc.validator)
	require.IsType(t, noopInvalidator{}, svc.summary)
	require.IsType(t, cache.NopLocker{}, svc.lock.locker)
	require.Equal(t, defaultReviewLockTTL, svc.lock.ttl)
	require.Equal(t, defaultPhotoDimension, svc.cfg.PhotoMaxDimension)
	require.NotEmpty(t, svc.cfg.Template.Default)

	locker := newLockerStub()
	notifier := &notifierStub{}
	svc = NewAdmissionService(nil, nil, nil, nil, nil, AdmissionServiceConfig{ReviewLockTTL: time.Minute},
		WithAdmissionLocker(locker),
		WithDecisionNotifier(notifier),
	)
	require.Same(t, locker, svc.lock.locker)
	require.Equal(t, time.Minute, svc.lock.ttl)
	require.Same(t, notifier, svc.notifier)
}

func TestAdmissionServiceRegisterProvisionsDefaults(t *testing.T) {
	f := newAdmissionFixture()

	detail, err := f.svc.Register(context.Background(), dto.RegisterAdmissionRequest{
		ApplicantName: "Rina Wulandari",
		Grade:         "10",
		DateOfBirth:   "2010-04-12",
		Gender:        "FEMALE",
		GuardianName:  "Budi",
		GuardianPhone: "0812-3456-7890",
	}, parentActor)
	require.NoError(t, err)
	require.Equal(t, models.AdmissionStatusRegistered, detail.Status)
	require.Equal(t, "+6281234567890", detail.GuardianPhone)
	require.Len(t, detail.Documents, len(DefaultDocumentTemplate().Default))
	require.False(t, detail.Compliance.Cleared)
	require.Equal(t, parentActor.ID, *detail.SubmittedBy)

	require.Len(t, f.authority.audits, 1)
	require.Equal(t, models.AuditActionAdmissionRegister, f.authority.audits[0].Action)
	require.Nil(t, f.authority.audits[0].PreviousStatus)
}

func TestAdmissionServiceRegisterRejectsBadInput(t *testing.T) {
	f := newAdmissionFixture()
	ctx := context.Background()

	_, err := f.svc.Register(ctx, dto.RegisterAdmissionRequest{ApplicantName: "Rina"}, parentActor)
	require.Equal(t, appErrors.CategoryValidation, appErrors.Classify(err))

	_, err = f.svc.Register(ctx, dto.RegisterAdmissionRequest{
		ApplicantName: "Rina", Grade: "10", GuardianName: "Budi", GuardianPhone: "12",
	}, parentActor)
	require.True(t, errors.Is(err, appErrors.ErrValidation))
	require.Zero(t, f.authority.calls["admission.create"])
}

func TestAdmissionServiceFinalizeBlockedMakesNoWrite(t *testing.T) {
	cases := []struct {
		name string
		docs []models.DocumentRequirement
	}{
		{"no requirements", nil},
		{"mandatory pending", []models.DocumentRequirement{
			requirement("d1", true, models.DocumentStatusVerified),
			requirement("d2", true, models.DocumentStatusPending),
		}},
		{"mandatory rejected", []models.DocumentRequirement{
			requirement("d1", true, models.DocumentStatusRejected),
		}},
		{"mandatory submitted", []models.DocumentRequirement{
			requirement("d1", true, models.DocumentStatusSubmitted),
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newAdmissionFixture()
			f.seed(models.AdmissionStatusVerified, tc.docs...)

			_, err := f.svc.Finalize(context.Background(), "adm-1", staffActor)
			require.True(t, errors.Is(err, appErrors.ErrComplianceBlocked))
			require.Equal(t, appErrors.CategoryValidation, appErrors.Classify(err))
			require.Zero(t, f.authority.calls["admission.approve"])
			require.Empty(t, f.authority.audits)
			require.Empty(t, f.notifier.decisions)
		})
	}
}

func TestAdmissionServiceFinalizeApproves(t *testing.T) {
	f := newAdmissionFixture()
	f.seed(models.AdmissionStatusVerified,
		requirement("d1", true, models.DocumentStatusVerified),
		requirement("d2", true, models.DocumentStatusVerified),
		requirement("d3", false, models.DocumentStatusPending),
	)

	detail, err := f.svc.Finalize(context.Background(), "adm-1", staffActor)
	require.NoError(t, err)
	require.Equal(t, models.AdmissionStatusApproved, detail.Status)
	require.True(t, detail.Compliance.Cleared)
	require.Equal(t, 1, f.authority.calls["admission.approve"])
	require.Equal(t, models.AdmissionStatusApproved, f.authority.admissions["adm-1"].Status)

	require.Len(t, f.authority.audits, 1)
	entry := f.authority.audits[0]
	require.Equal(t, models.AuditActionAdmissionFinalize, entry.Action)
	require.Equal(t, string(models.AdmissionStatusApproved), entry.NewStatus)
	require.Equal(t, string(models.AdmissionStatusVerified), *entry.PreviousStatus)
	require.Equal(t, staffActor.ID, *entry.ActorID)

	require.Len(t, f.notifier.decisions, 1)
	require.Equal(t, "budi@example.com", f.notifier.decisions[0].GuardianEmail)
	require.Equal(t, []string{"admission:adm-1"}, f.locker.obtained)
	require.Empty(t, f.locker.held)
}

func TestAdmissionServiceFinalizeTwiceIsConflict(t *testing.T) {
	f := newAdmissionFixture()
	f.seed(models.AdmissionStatusPendingReview, requirement("d1", true, models.DocumentStatusVerified))
	ctx := context.Background()

	_, err := f.svc.Finalize(ctx, "adm-1", staffActor)
	require.NoError(t, err)

	_, err = f.svc.Finalize(ctx, "adm-1", staffActor)
	require.True(t, errors.Is(err, appErrors.ErrFinalized))
	require.Equal(t, appErrors.CategoryRejected, appErrors.Classify(err))
	require.Equal(t, 1, f.authority.calls["admission.approve"])
	require.Len(t, f.authority.audits, 1)
}

func TestAdmissionServiceFinalizeGuardMissIsConflict(t *testing.T) {
	f := newAdmissionFixture()
	f.seed(models.AdmissionStatusVerified, requirement("d1", true, models.DocumentStatusVerified))
	f.authority.fail["admission.approve"] = sql.ErrNoRows

	_, err := f.svc.Finalize(context.Background(), "adm-1", staffActor)
	require.True(t, errors.Is(err, appErrors.ErrConflict))
	require.Contains(t, err.Error(), "refresh")
	require.Empty(t, f.notifier.decisions)
}

func TestAdmissionServiceFinalizeTransportFailureIsUnknown(t *testing.T) {
	f := newAdmissionFixture()
	f.seed(models.AdmissionStatusVerified, requirement("d1", true, models.DocumentStatusVerified))
	f.authority.fail["admission.approve"] = errors.New("connection reset by peer")

	_, err := f.svc.Finalize(context.Background(), "adm-1", staffActor)
	require.Equal(t, appErrors.CategoryUnknown, appErrors.Classify(err))
	require.Equal(t, appErrors.ErrInternal.Message, appErrors.FromError(err).Message)
}

func TestAdmissionServiceFinalizeWhileLockedIsConflict(t *testing.T) {
	f := newAdmissionFixture()
	f.seed(models.AdmissionStatusVerified, requirement("d1", true, models.DocumentStatusVerified))
	f.locker.held["admission:adm-1"] = true

	_, err := f.svc.Finalize(context.Background(), "adm-1", staffActor)
	require.True(t, errors.Is(err, appErrors.ErrConflict))
	require.Zero(t, f.authority.calls["admission.approve"])
}

func TestAdmissionServiceUpdateStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("approve is reserved for finalize", func(t *testing.T) {
		f := newAdmissionFixture()
		f.seed(models.AdmissionStatusVerified, requirement("d1", true, models.DocumentStatusVerified))
		_, err := f.svc.UpdateStatus(ctx, "adm-1", dto.UpdateAdmissionStatusRequest{Status: models.AdmissionStatusApproved}, staffActor)
		require.True(t, errors.Is(err, appErrors.ErrInvalidTransition))
		require.Zero(t, f.authority.calls["admission.update_status"])
	})

	t.Run("reject needs a reason", func(t *testing.T) {
		f := newAdmissionFixture()
		f.seed(models.AdmissionStatusPendingReview)
		_, err := f.svc.UpdateStatus(ctx, "adm-1", dto.UpdateAdmissionStatusRequest{Status: models.AdmissionStatusRejected, Reason: "  "}, staffActor)
		require.True(t, errors.Is(err, appErrors.ErrValidation))
	})

	t.Run("reject notifies guardian", func(t *testing.T) {
		f := newAdmissionFixture()
		f.seed(models.AdmissionStatusPendingReview)
		admission, err := f.svc.UpdateStatus(ctx, "adm-1", dto.UpdateAdmissionStatusRequest{Status: "rejected", Reason: "quota full"}, staffActor)
		require.NoError(t, err)
		require.Equal(t, models.AdmissionStatusRejected, admission.Status)
		require.Equal(t, "quota full", *admission.StatusReason)
		require.Len(t, f.notifier.decisions, 1)
		require.Equal(t, models.AdmissionStatusRejected, f.notifier.decisions[0].Status)
		require.Equal(t, models.AuditActionAdmissionStatus, f.authority.audits[0].Action)
	})

	t.Run("terminal admissions are final", func(t *testing.T) {
		f := newAdmissionFixture()
		f.seed(models.AdmissionStatusCancelled)
		_, err := f.svc.UpdateStatus(ctx, "adm-1", dto.UpdateAdmissionStatusRequest{Status: models.AdmissionStatusVerified}, staffActor)
		require.True(t, errors.Is(err, appErrors.ErrFinalized))
	})

	t.Run("concurrent change surfaces as conflict", func(t *testing.T) {
		f := newAdmissionFixture()
		f.seed(models.AdmissionStatusRegistered)
		f.authority.fail["admission.update_status"] = sql.ErrNoRows
		_, err := f.svc.UpdateStatus(ctx, "adm-1", dto.UpdateAdmissionStatusRequest{Status: models.AdmissionStatusVerified}, staffActor)
		require.True(t, errors.Is(err, appErrors.ErrConflict))
		require.Empty(t, f.notifier.decisions)
	})
}

func TestAdmissionServiceScopesParents(t *testing.T) {
	f := newAdmissionFixture()
	f.seed(models.AdmissionStatusRegistered, requirement("d1", true, models.DocumentStatusPending))
	ctx := context.Background()

	detail, err := f.svc.Get(ctx, "adm-1", parentActor)
	require.NoError(t, err)
	require.Len(t, detail.Documents, 1)

	_, err = f.svc.Get(ctx, "adm-1", otherParent)
	require.True(t, errors.Is(err, appErrors.ErrNotFound))

	list, page, err := f.svc.List(ctx, dto.AdmissionQuery{}, otherParent)
	require.NoError(t, err)
	require.Empty(t, list)
	require.Equal(t, 20, page.PageSize)

	_, _, err = f.svc.List(ctx, dto.AdmissionQuery{Status: []models.AdmissionStatus{"WAITLISTED"}}, staffActor)
	require.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestAdmissionServiceComplianceAndAuditLogs(t *testing.T) {
	f := newAdmissionFixture()
	f.seed(models.AdmissionStatusVerified,
		requirement("d1", true, models.DocumentStatusVerified),
		requirement("d2", true, models.DocumentStatusPending),
	)
	ctx := context.Background()

	compliance, err := f.svc.Compliance(ctx, "adm-1", staffActor)
	require.NoError(t, err)
	require.False(t, compliance.Cleared)
	require.Equal(t, 1, compliance.Outstanding)

	_, err = f.svc.UpdateStatus(ctx, "adm-1", dto.UpdateAdmissionStatusRequest{Status: models.AdmissionStatusCancelled}, staffActor)
	require.NoError(t, err)
	logs, err := f.svc.AuditLogs(ctx, "adm-1", staffActor)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, string(models.AdmissionStatusCancelled), logs[0].NewStatus)
}

func TestAdmissionServiceUploadPhotoResizes(t *testing.T) {
	f := newAdmissionFixture()
	f.seed(models.AdmissionStatusRegistered)

	src := image.NewRGBA(image.Rect(0, 0, 200, 100))
	for x := 0; x < 200; x++ {
		src.Set(x, x%100, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))

	admission, err := f.svc.UploadPhoto(context.Background(), "adm-1", dto.DocumentUpload{FileName: "me.png", Content: buf.Bytes()}, parentActor)
	require.NoError(t, err)
	require.NotNil(t, admission.PhotoPath)

	stored := f.store.objects[*admission.PhotoPath]
	require.NotEmpty(t, stored)
	img, err := imaging.Decode(bytes.NewReader(stored))
	require.NoError(t, err)
	require.Equal(t, 64, img.Bounds().Dx())
	require.Equal(t, 32, img.Bounds().Dy())
	require.Equal(t, models.AuditActionPhotoUpload, f.authority.audits[0].Action)
}

func TestAdmissionServiceUploadPhotoRejectsNonImage(t *testing.T) {
	f := newAdmissionFixture()
	f.seed(models.AdmissionStatusRegistered)

	_, err := f.svc.UploadPhoto(context.Background(), "adm-1", dto.DocumentUpload{Content: []byte("%PDF-1.4 not an image")}, parentActor)
	require.True(t, errors.Is(err, appErrors.ErrValidation))
	require.Empty(t, f.store.objects)
	require.Zero(t, f.authority.calls["admission.update_photo"])
}

func TestAdmissionServiceUploadPhotoCleansUpOnConflict(t *testing.T) {
	f := newAdmissionFixture()
	f.seed(models.AdmissionStatusRegistered)
	f.authority.fail["admission.update_photo"] = sql.ErrNoRows

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 10, 10))))
	_, err := f.svc.UploadPhoto(context.Background(), "adm-1", dto.DocumentUpload{Content: buf.Bytes()}, staffActor)
	require.True(t, errors.Is(err, appErrors.ErrConflict))
	require.Empty(t, f.store.objects)
}

func TestAdmissionServiceChecklistPDF(t *testing.T) {
	f := newAdmissionFixture()
	f.seed(models.AdmissionStatusVerified,
		requirement("d1", true, models.DocumentStatusVerified),
		requirement("d2", false, models.DocumentStatusRejected),
	)

	content, filename, err := f.svc.ChecklistPDF(context.Background(), "adm-1", staffActor)
	require.NoError(t, err)
	require.Equal(t, "checklist-adm-1.pdf", filename)
	require.True(t, bytes.HasPrefix(content, []byte("%PDF")))
}
