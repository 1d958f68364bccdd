package backup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"

	"github.com/aleph-forkalert/forkalert/alert"
	"github.com/aleph-forkalert/forkalert/crypto"
	"github.com/aleph-forkalert/forkalert/types"
	"github.com/aleph-forkalert/forkalert/unit"
)

const testSession = types.SessionId(5)

func testBox(t *testing.T) *crypto.ECDSAKeyBox {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	pub := map[types.NodeIndex]*btcec.PublicKey{0: priv.PubKey(), 1: priv.PubKey()}
	return crypto.NewECDSAKeyBox(0, priv, pub)
}

func signedUnit(t *testing.T, box *crypto.ECDSAKeyBox, creator types.NodeIndex, round types.Round, mask []bool) unit.SignedUnit {
	t.Helper()
	su, err := unit.Sign(box, unit.Unit{
		Creator:     creator,
		Round:       round,
		SessionID:   testSession,
		ControlHash: unit.ControlHash{ParentsMask: mask},
		Data:        []byte("u"),
	})
	require.NoError(t, err)
	return su
}

func TestNothingLoadedNothingCollectedSucceeds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup.log")
	result, err := Load(path, 0, testSession)
	require.NoError(t, err)
	require.Empty(t, result.Units)
	require.Equal(t, types.Round(0), result.NextRoundBackup)
}

func TestSomethingLoadedSomethingCollectedSucceeds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup.log")
	box := testBox(t)

	saver, err := NewSaver(path)
	require.NoError(t, err)

	r0 := signedUnit(t, box, 0, 0, nil)
	r1 := signedUnit(t, box, 0, 1, []bool{true})
	r2 := signedUnit(t, box, 0, 2, []bool{true})
	require.NoError(t, saver.Append(NewUnitRecord(r0)))
	require.NoError(t, saver.Append(NewUnitRecord(r1)))
	require.NoError(t, saver.Append(NewUnitRecord(r2)))
	require.NoError(t, saver.Close())

	result, err := Load(path, 0, testSession)
	require.NoError(t, err)
	require.Len(t, result.Units, 3)
	require.Equal(t, types.Round(3), result.NextRoundBackup)

	decision, err := ResolveResumeRound(result.NextRoundBackup, types.Round(3))
	require.NoError(t, err)
	require.Equal(t, types.Round(3), decision.Round)
	require.False(t, decision.Warn)
}

func TestBackupWithMissingParentFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup.log")
	box := testBox(t)

	saver, err := NewSaver(path)
	require.NoError(t, err)

	// Round 1 claims a parent at round 0 from creator 0, but no round-0
	// unit was ever written.
	r1 := signedUnit(t, box, 0, 1, []bool{true})
	require.NoError(t, saver.Append(NewUnitRecord(r1)))
	require.NoError(t, saver.Close())

	_, err = Load(path, 0, testSession)
	require.ErrorIs(t, err, ErrMissingParent)
}

func TestBackupWithWrongSessionFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup.log")
	box := testBox(t)

	saver, err := NewSaver(path)
	require.NoError(t, err)

	su, err := unit.Sign(box, unit.Unit{Creator: 0, Round: 0, SessionID: testSession + 1})
	require.NoError(t, err)
	require.NoError(t, saver.Append(NewUnitRecord(su)))
	require.NoError(t, saver.Close())

	_, err = Load(path, 0, testSession)
	require.ErrorIs(t, err, ErrWrongSession)
}

func TestBackupWithCorruptedEncodingFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup.log")
	box := testBox(t)

	saver, err := NewSaver(path)
	require.NoError(t, err)
	r0 := signedUnit(t, box, 0, 0, nil)
	require.NoError(t, saver.Append(NewUnitRecord(r0)))
	require.NoError(t, saver.Close())

	// Truncate mid-record to simulate a crash during a partial write.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw[:len(raw)-2], 0600))

	_, err = Load(path, 0, testSession)
	require.Error(t, err)
}

func TestBackupWithDuplicateUnitSucceeds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup.log")
	box := testBox(t)

	saver, err := NewSaver(path)
	require.NoError(t, err)
	r0 := signedUnit(t, box, 0, 0, nil)
	require.NoError(t, saver.Append(NewUnitRecord(r0)))
	require.NoError(t, saver.Append(NewUnitRecord(r0)))
	require.NoError(t, saver.Close())

	result, err := Load(path, 0, testSession)
	require.NoError(t, err)
	require.Len(t, result.Units, 2)
	require.Equal(t, types.Round(1), result.NextRoundBackup)
}

func TestResolveResumeRoundFatalWhenBehind(t *testing.T) {
	_, err := ResolveResumeRound(types.Round(2), types.Round(5))
	require.ErrorIs(t, err, ErrDuplicateWriter)
}

func TestResolveResumeRoundWarnsWhenAhead(t *testing.T) {
	decision, err := ResolveResumeRound(types.Round(5), types.Round(2))
	require.NoError(t, err)
	require.True(t, decision.Warn)
	require.Equal(t, types.Round(5), decision.Round)
}

func TestOwnAlertAndMultisignedRecordsRoundTripThroughLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup.log")
	box := testBox(t)

	u1, err := unit.Sign(box, unit.Unit{Creator: 1, Round: 4, SessionID: testSession, Data: []byte("a")})
	require.NoError(t, err)
	u2, err := unit.Sign(box, unit.Unit{Creator: 1, Round: 4, SessionID: testSession, Data: []byte("b")})
	require.NoError(t, err)
	proof, err := unit.NewForkProof(u1, u2)
	require.NoError(t, err)

	a := &alert.Alert{Sender: 0, Proof: proof}
	signed, err := alert.Sign(box, a)
	require.NoError(t, err)

	saver, err := NewSaver(path)
	require.NoError(t, err)
	require.NoError(t, saver.Append(NewOwnAlertRecord(signed)))
	require.NoError(t, saver.Append(NewMultisignedRecord(crypto.Hash{1, 2, 3}, []byte("multisig"))))
	require.NoError(t, saver.Close())

	result, err := Load(path, 0, testSession)
	require.NoError(t, err)
	require.Len(t, result.OwnAlerts, 1)
	require.Len(t, result.Multisigs, 1)
	require.Equal(t, []byte("multisig"), result.Multisigs[0].Raw)
}
