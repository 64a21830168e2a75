package validation

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/peterldowns/testy/assert"
	"github.com/veraison/go-cose"

	"github.com/cloudx-io/openescrow/enclaveapi"
	"github.com/cloudx-io/openescrow/enclaveapi/parsing"
)

var zeroPCR = parsing.FormatPCR(make([]byte, 48))

var debugPCRs = []PCRSet{{PCR0: zeroPCR, PCR1: zeroPCR, PCR2: zeroPCR, CommitHash: "debug"}}

// testSigner signs attestation documents the way a Nitro debug enclave does,
// under a throwaway root.
type testSigner struct {
	key     *ecdsa.PrivateKey
	leafDER []byte
	rootDER []byte
	now     time.Time
}

func newTestSigner(t *testing.T) *testSigner {
	t.Helper()
	rootKey, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	assert.NoError(t, err)
	key, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	assert.NoError(t, err)

	now := time.Now()
	rootTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "test root"},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(time.Hour),
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	rootDER, err := x509.CreateCertificate(rand.Reader, rootTemplate, rootTemplate, &rootKey.PublicKey, rootKey)
	assert.NoError(t, err)
	root, err := x509.ParseCertificate(rootDER)
	assert.NoError(t, err)

	leafTemplate := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "test enclave"},
		NotBefore:    now.Add(-time.Hour),
		NotAfter:     now.Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	leafDER, err := x509.CreateCertificate(rand.Reader, leafTemplate, root, &key.PublicKey, rootKey)
	assert.NoError(t, err)

	return &testSigner{key: key, leafDER: leafDER, rootDER: rootDER, now: now}
}

func (s *testSigner) rootPEM() []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: s.rootDER})
}

func (s *testSigner) options() Options {
	return Options{PCRSets: debugPCRs, ExtraRootsPEM: s.rootPEM()}
}

// attest returns the base64 COSE_Sign1 of a document carrying userData as JSON.
func (s *testSigner) attest(t *testing.T, userData any) enclaveapi.AttestationCOSEBase64 {
	t.Helper()
	data, err := json.Marshal(userData)
	assert.NoError(t, err)

	zero := make([]byte, 48)
	doc := parsing.NitroAttestationDocument{
		ModuleID:    "test-enclave",
		Digest:      "SHA384",
		Timestamp:   uint64(s.now.UnixMilli()),
		PCRs:        map[uint64][]byte{0: zero, 1: zero, 2: zero},
		Certificate: s.leafDER,
		CABundle:    [][]byte{s.rootDER},
		UserData:    data,
	}
	payload, err := cbor.Marshal(doc)
	assert.NoError(t, err)
	protected, err := cbor.Marshal(map[int64]int64{1: int64(cose.AlgorithmES384)})
	assert.NoError(t, err)

	sigStructure, err := parsing.SigStructure(protected, payload)
	assert.NoError(t, err)
	signer, err := cose.NewSigner(cose.AlgorithmES384, s.key)
	assert.NoError(t, err)
	signature, err := signer.Sign(rand.Reader, sigStructure)
	assert.NoError(t, err)

	coseBytes, err := cbor.Marshal([]any{protected, map[any]any{}, payload, signature})
	assert.NoError(t, err)
	return enclaveapi.AttestationCOSE(coseBytes).EncodeBase64()
}
