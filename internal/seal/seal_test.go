package seal

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linnemanlabs/fieldtriage/internal/patient"
)

func testService(t *testing.T) *Service {
	t.Helper()
	key, err := newKey()
	require.NoError(t, err)
	svc, err := New(key)
	require.NoError(t, err)
	return svc
}

func sampleRecord() *patient.Record {
	pulse := 88
	rr := 18
	refill := 1.5
	radial := patient.RadialPresent
	mob := patient.MobilityNonAmbulatory
	return &patient.Record{
		ID:       "11111111-2222-3333-4444-555555555555",
		AgeGroup: patient.AgeAdult,
		Vitals: patient.Vitals{
			Pulse:           &pulse,
			Breathing:       patient.BreathingNormal,
			Circulation:     patient.CirculationNormal,
			Consciousness:   patient.ConsciousnessAlert,
			RespiratoryRate: &rr,
			CapillaryRefill: &refill,
			RadialPulse:     &radial,
		},
		Mobility:    &mob,
		Injuries:    []string{"laceration left forearm", "suspected rib fracture"},
		Notes:       "found near vehicle",
		Timestamp:   time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
		LastUpdated: time.Date(2026, 3, 14, 9, 45, 0, 0, time.UTC),
		Priority:    patient.PriorityFor(patient.LevelYellow),
		Status:      patient.StatusActive,
	}
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	t.Parallel()

	svc := testService(t)
	want := sampleRecord()

	blob, err := svc.Encrypt(want)
	require.NoError(t, err)

	got, err := svc.Decrypt(blob)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// Date fields must come back as real instants, not strings.
	assert.True(t, got.Timestamp.Equal(want.Timestamp))
	assert.True(t, got.LastUpdated.Equal(want.LastUpdated))
}

func TestEncrypt_FreshNoncePerCall(t *testing.T) {
	t.Parallel()

	svc := testService(t)
	r := sampleRecord()

	a, err := svc.Encrypt(r)
	require.NoError(t, err)
	b, err := svc.Encrypt(r)
	require.NoError(t, err)

	assert.NotEqual(t, a, b, "identical plaintexts must never share a nonce")

	rawA, _ := base64.StdEncoding.DecodeString(a)
	rawB, _ := base64.StdEncoding.DecodeString(b)
	assert.NotEqual(t, rawA[:12], rawB[:12])
}

func TestDecrypt_TamperDetected(t *testing.T) {
	t.Parallel()

	svc := testService(t)
	blob, err := svc.Encrypt(sampleRecord())
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(blob)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0x01

	_, err = svc.Decrypt(base64.StdEncoding.EncodeToString(raw))
	assert.ErrorIs(t, err, ErrDecryptFailed)
}

func TestDecrypt_Malformed(t *testing.T) {
	t.Parallel()

	svc := testService(t)

	_, err := svc.Decrypt("not base64!!!")
	assert.ErrorIs(t, err, ErrDecryptFailed)

	_, err = svc.Decrypt(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.ErrorIs(t, err, ErrDecryptFailed)
}

func TestDecrypt_WrongKey(t *testing.T) {
	t.Parallel()

	a := testService(t)
	b := testService(t)

	blob, err := a.Encrypt(sampleRecord())
	require.NoError(t, err)

	_, err = b.Decrypt(blob)
	assert.ErrorIs(t, err, ErrDecryptFailed)
}

func TestNewID(t *testing.T) {
	t.Parallel()

	svc := testService(t)
	a := svc.NewID()
	b := svc.NewID()
	assert.NotEqual(t, a, b)

	_, err := uuid.Parse(a)
	assert.NoError(t, err)
}

func TestOpen_CreatesAndReloadsKey(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "record.key")

	first, err := Open(path, "")
	require.NoError(t, err)

	blob, err := first.Encrypt(sampleRecord())
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// A second open must import the same key, not regenerate.
	second, err := Open(path, "")
	require.NoError(t, err)
	got, err := second.Decrypt(blob)
	require.NoError(t, err)
	assert.Equal(t, "11111111-2222-3333-4444-555555555555", got.ID)
}

func TestOpen_CorruptKeyfileFailsLoudly(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "record.key")
	require.NoError(t, os.WriteFile(path, []byte("zz not a key"), 0o600))

	_, err := Open(path, "")
	assert.ErrorIs(t, err, ErrKeyUnavailable)

	// The corrupt file must survive untouched for recovery attempts.
	data, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Equal(t, "zz not a key", string(data))
}

func TestOpen_WrongKeySize(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "record.key")
	require.NoError(t, os.WriteFile(path, []byte("deadbeef"), 0o600))

	_, err := Open(path, "")
	assert.ErrorIs(t, err, ErrKeyUnavailable)
}

func TestOpen_PassphraseRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "record.key")

	first, err := Open(path, "correct horse")
	require.NoError(t, err)
	blob, err := first.Encrypt(sampleRecord())
	require.NoError(t, err)

	second, err := Open(path, "correct horse")
	require.NoError(t, err)
	_, err = second.Decrypt(blob)
	assert.NoError(t, err)
}

func TestOpen_WrongPassphrase(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "record.key")
	_, err := Open(path, "correct horse")
	require.NoError(t, err)

	_, err = Open(path, "battery staple")
	assert.ErrorIs(t, err, ErrKeyUnavailable)
}

func TestOpen_PassphraseModeMismatch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	plain := filepath.Join(dir, "plain.key")
	_, err := Open(plain, "")
	require.NoError(t, err)
	_, err = Open(plain, "now with passphrase")
	assert.ErrorIs(t, err, ErrKeyUnavailable)

	wrapped := filepath.Join(dir, "wrapped.key")
	_, err = Open(wrapped, "secret")
	require.NoError(t, err)
	_, err = Open(wrapped, "")
	assert.ErrorIs(t, err, ErrKeyUnavailable)
}
