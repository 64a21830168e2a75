package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"time"

	enclave "github.com/edgebitio/nitro-enclaves-sdk-go"
	"github.com/fxamacker/cbor/v2"
	"github.com/veraison/go-cose"

	"github.com/cloudx-io/openescrow/enclaveapi/parsing"
)

const localModuleID = "openescrow-local"

// KeyManager is a software attester for development outside a Nitro enclave.
// It holds an ECDSA P-384 signing key certified by its own root and produces
// attestation documents shaped exactly like the NSM's: an untagged COSE_Sign1
// over a CBOR document, signed ES384. PCRs are all zero, as in a Nitro debug
// enclave.
type KeyManager struct {
	signingKey *ecdsa.PrivateKey // Keep private - sensitive!
	leafDER    []byte
	rootDER    []byte
	pcrs       map[uint64][]byte
	now        func() time.Time
}

// NewKeyManager creates a root certificate and a signing certificate under it.
func NewKeyManager() (*KeyManager, error) {
	rootKey, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate root key: %w", err)
	}
	signingKey, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}

	notBefore := time.Now().Add(-time.Hour)
	rootTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{Organization: []string{"openescrow"}, CommonName: "openescrow local root"},
		NotBefore:             notBefore,
		NotAfter:              notBefore.Add(10 * 365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	rootDER, err := x509.CreateCertificate(rand.Reader, rootTemplate, rootTemplate, &rootKey.PublicKey, rootKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create root certificate: %w", err)
	}
	rootCert, err := x509.ParseCertificate(rootDER)
	if err != nil {
		return nil, fmt.Errorf("failed to parse root certificate: %w", err)
	}

	leafTemplate := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{Organization: []string{"openescrow"}, CommonName: localModuleID},
		NotBefore:    notBefore,
		NotAfter:     notBefore.Add(365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	leafDER, err := x509.CreateCertificate(rand.Reader, leafTemplate, rootCert, &signingKey.PublicKey, rootKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create signing certificate: %w", err)
	}

	zero := make([]byte, 48)
	pcrs := make(map[uint64][]byte)
	for _, i := range []uint64{0, 1, 2, 3, 4, 8} {
		pcrs[i] = zero
	}

	return &KeyManager{
		signingKey: signingKey,
		leafDER:    leafDER,
		rootDER:    rootDER,
		pcrs:       pcrs,
		now:        time.Now,
	}, nil
}

// RootPEM returns the root certificate validators must trust.
func (km *KeyManager) RootPEM() string {
	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: km.rootDER}))
}

// Attest returns a signed attestation document carrying options' user data
// and nonce.
func (km *KeyManager) Attest(options enclave.AttestationOptions) ([]byte, error) {
	doc := parsing.NitroAttestationDocument{
		ModuleID:    localModuleID,
		Digest:      "SHA384",
		Timestamp:   uint64(km.now().UnixMilli()),
		PCRs:        km.pcrs,
		Certificate: km.leafDER,
		CABundle:    [][]byte{km.rootDER},
		UserData:    options.UserData,
		Nonce:       options.Nonce,
	}
	payload, err := cbor.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal attestation document: %w", err)
	}

	protected, err := cbor.Marshal(map[int64]int64{1: int64(cose.AlgorithmES384)})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal protected header: %w", err)
	}
	sigStructure, err := parsing.SigStructure(protected, payload)
	if err != nil {
		return nil, err
	}

	signer, err := cose.NewSigner(cose.AlgorithmES384, km.signingKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create signer: %w", err)
	}
	signature, err := signer.Sign(rand.Reader, sigStructure)
	if err != nil {
		return nil, fmt.Errorf("failed to sign attestation: %w", err)
	}

	return cbor.Marshal([]any{protected, map[any]any{}, payload, signature})
}
