package main

import (
	"crypto/x509"
	"encoding/pem"
	"strings"
	"testing"
	"time"

	enclave "github.com/edgebitio/nitro-enclaves-sdk-go"
	"github.com/fxamacker/cbor/v2"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/veraison/go-cose"

	"github.com/cloudx-io/openescrow/enclaveapi"
	"github.com/cloudx-io/openescrow/enclaveapi/parsing"
)

func TestNewKeyManager(t *testing.T) {
	km, err := NewKeyManager()
	assert.NoError(t, err)
	assert.NotNil(t, km)
	assert.NotNil(t, km.signingKey)
	check.Equal(t, 6, len(km.pcrs))
}

func TestKeyManager_RootPEM(t *testing.T) {
	km, err := NewKeyManager()
	assert.NoError(t, err)

	pemStr := km.RootPEM()
	assert.True(t, strings.HasPrefix(pemStr, "-----BEGIN CERTIFICATE-----"))

	block, _ := pem.Decode([]byte(pemStr))
	assert.NotNil(t, block)
	root, err := x509.ParseCertificate(block.Bytes)
	assert.NoError(t, err)
	check.True(t, root.IsCA)
}

func TestKeyManager_UniqueRoots(t *testing.T) {
	km1, _ := NewKeyManager()
	km2, _ := NewKeyManager()
	assert.NotEqual(t, km1.RootPEM(), km2.RootPEM())
}

func TestKeyManager_AttestSignatureVerifies(t *testing.T) {
	km, err := NewKeyManager()
	assert.NoError(t, err)

	coseBytes, err := km.Attest(enclave.AttestationOptions{
		UserData: []byte(`{"auction_id":"spring-sale"}`),
		Nonce:    []byte("nonce-1"),
	})
	assert.NoError(t, err)

	doc, err := parsing.DecodeNitroDocument(coseBytes)
	assert.NoError(t, err)
	check.Equal(t, localModuleID, doc.ModuleID)
	check.Equal(t, "SHA384", doc.Digest)
	check.Equal(t, `{"auction_id":"spring-sale"}`, string(doc.UserData))
	check.Equal(t, "nonce-1", string(doc.Nonce))

	// The signing certificate chains to the root.
	leaf, err := x509.ParseCertificate(doc.Certificate)
	assert.NoError(t, err)
	roots := x509.NewCertPool()
	block, _ := pem.Decode([]byte(km.RootPEM()))
	root, err := x509.ParseCertificate(block.Bytes)
	assert.NoError(t, err)
	roots.AddCert(root)
	_, err = leaf.Verify(x509.VerifyOptions{
		Roots:       roots,
		CurrentTime: time.Now(),
		KeyUsages:   []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	assert.NoError(t, err)

	// The signature covers the Sig_structure.
	var msg parsing.COSESign1
	assert.NoError(t, cbor.Unmarshal(coseBytes, &msg))
	sigStructure, err := parsing.SigStructure(msg.Protected, msg.Payload)
	assert.NoError(t, err)
	verifier, err := cose.NewVerifier(cose.AlgorithmES384, leaf.PublicKey)
	assert.NoError(t, err)
	check.NoError(t, verifier.Verify(sigStructure, msg.Signature))

	msg.Payload = append([]byte{}, msg.Payload...)
	msg.Payload[len(msg.Payload)-1] ^= 0xff
	tampered, err := parsing.SigStructure(msg.Protected, msg.Payload)
	assert.NoError(t, err)
	check.Error(t, verifier.Verify(tampered, msg.Signature))
}

func TestKeyManager_ParsesAsAttestationDoc(t *testing.T) {
	km, err := NewKeyManager()
	assert.NoError(t, err)

	raw, err := km.Attest(enclave.AttestationOptions{UserData: []byte("{}")})
	assert.NoError(t, err)

	doc, userData, err := enclaveapi.AttestationCOSE(raw).ParseAttestationDoc()
	assert.NoError(t, err)
	check.Equal(t, "{}", string(userData))
	check.Equal(t, strings.Repeat("0", 96), doc.PCRs.ImageFileHash)
	check.Equal(t, 1, len(doc.CABundle))
}
