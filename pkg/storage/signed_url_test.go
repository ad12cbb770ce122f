package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignedURLSignerGenerateAndParse(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, expiresAt, err := signer.Generate("doc-1", "admissions/adm-1/documents/doc-1/akta.pdf")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.False(t, expiresAt.IsZero())

	subject, key, err := signer.Parse(token)
	require.NoError(t, err)
	require.Equal(t, "doc-1", subject)
	require.Equal(t, "admissions/adm-1/documents/doc-1/akta.pdf", key)
}

func TestSignedURLSignerExpired(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)
	issued := time.Now()
	signer.now = func() time.Time { return issued }
	token, _, err := signer.Generate("doc-1", "a/b.pdf")
	require.NoError(t, err)

	signer.now = func() time.Time { return issued.Add(2 * time.Minute) }
	_, _, err = signer.Parse(token)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestSignedURLSignerRejectsTampering(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, _, err := signer.Generate("doc-1", "a/b.pdf")
	require.NoError(t, err)

	_, _, err = signer.Parse("doc-2" + token[len("doc-1"):])
	require.ErrorIs(t, err, ErrTokenInvalid)

	other := NewSignedURLSigner("other", time.Hour)
	_, _, err = other.Parse(token)
	require.ErrorIs(t, err, ErrTokenInvalid)

	_, _, err = signer.Parse("garbage")
	require.ErrorIs(t, err, ErrTokenInvalid)
}
