package enclaveapi

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"fmt"
	"io"
	"time"

	"github.com/cloudx-io/openescrow/enclaveapi/parsing"
)

// AttestationCOSE is a raw COSE_Sign1 attestation as returned by the NSM.
type AttestationCOSE []byte

// AttestationCOSEBase64 is standard base64 of AttestationCOSE, used in JSON.
type AttestationCOSEBase64 string

// AttestationCOSEURLBase64 is unpadded base64url of AttestationCOSE.
type AttestationCOSEURLBase64 string

// AttestationCOSEGzip is unpadded base64url of the gzipped AttestationCOSE.
// It is compact enough to travel in a URL or a notification payload.
type AttestationCOSEGzip string

func (a AttestationCOSE) EncodeBase64() AttestationCOSEBase64 {
	return AttestationCOSEBase64(base64.StdEncoding.EncodeToString(a))
}

func (a AttestationCOSE) EncodeURLSafe() AttestationCOSEURLBase64 {
	return AttestationCOSEURLBase64(base64.RawURLEncoding.EncodeToString(a))
}

// CompressGzip gzips the attestation and encodes it as unpadded base64url.
// The gzip header carries no timestamp, so the output is deterministic.
func (a AttestationCOSE) CompressGzip() (AttestationCOSEGzip, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return "", fmt.Errorf("create gzip writer: %w", err)
	}
	if _, err := zw.Write(a); err != nil {
		return "", fmt.Errorf("gzip attestation: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("close gzip writer: %w", err)
	}
	return AttestationCOSEGzip(base64.RawURLEncoding.EncodeToString(buf.Bytes())), nil
}

// ParseAttestationDoc decodes the Nitro attestation document carried in the
// COSE payload. It returns the document and its raw user data.
func (a AttestationCOSE) ParseAttestationDoc() (AttestationDoc, []byte, error) {
	raw, err := parsing.DecodeNitroDocument(a)
	if err != nil {
		return AttestationDoc{}, nil, err
	}

	doc := AttestationDoc{
		ModuleID:        raw.ModuleID,
		Timestamp:       time.UnixMilli(int64(raw.Timestamp)).UTC(),
		DigestAlgorithm: raw.Digest,
		PCRs:            pcrsFromRaw(raw.PCRs),
		Certificate:     base64.StdEncoding.EncodeToString(raw.Certificate),
		CABundle:        parsing.EncodeCertificateBundle(raw.CABundle),
		PublicKey:       base64.StdEncoding.EncodeToString(raw.PublicKey),
		Nonce:           string(raw.Nonce),
	}
	return doc, raw.UserData, nil
}

func (b AttestationCOSEBase64) String() string { return string(b) }

func (b AttestationCOSEBase64) Decode() (AttestationCOSE, error) {
	data, err := base64.StdEncoding.DecodeString(string(b))
	if err != nil {
		return nil, fmt.Errorf("decode COSE base64: %w", err)
	}
	return AttestationCOSE(data), nil
}

func (b AttestationCOSEBase64) CompressGzip() (AttestationCOSEGzip, error) {
	coseBytes, err := b.Decode()
	if err != nil {
		return "", err
	}
	return coseBytes.CompressGzip()
}

func (u AttestationCOSEURLBase64) String() string { return string(u) }

// Decode accepts both padded and unpadded input.
func (u AttestationCOSEURLBase64) Decode() (AttestationCOSE, error) {
	s := string(u)
	switch len(s) % 4 {
	case 1:
		return nil, fmt.Errorf("decode COSE base64url: invalid length %d", len(s))
	case 2:
		s += "=="
	case 3:
		s += "="
	}
	data, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode COSE base64url: %w", err)
	}
	return AttestationCOSE(data), nil
}

func (g AttestationCOSEGzip) String() string { return string(g) }

func (g AttestationCOSEGzip) Decompress() (AttestationCOSE, error) {
	compressed, err := base64.RawURLEncoding.DecodeString(string(g))
	if err != nil {
		return nil, fmt.Errorf("decode base64url: %w", err)
	}
	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("open gzip reader: %w", err)
	}
	defer zr.Close()

	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("read gzip data: %w", err)
	}
	return AttestationCOSE(data), nil
}

// PCRs represents the Platform Configuration Registers from AWS Nitro Enclaves
type PCRs struct {
	// PCR0: Hash of the Enclave Image File (EIF)
	ImageFileHash string `json:"0"`

	// PCR1: Hash of the Linux kernel and initial RAM data (initramfs)
	KernelHash string `json:"1"`

	// PCR2: Hash of user applications, excluding the boot ramfs
	ApplicationHash string `json:"2"`

	// PCR3: Hash of the IAM role assigned to the parent instance
	IAMRoleHash string `json:"3"`

	// PCR4: Hash of the parent instance's ID
	InstanceIDHash string `json:"4"`

	// PCR8: Hash of the enclave image file's signing certificate
	SigningCertHash string `json:"8,omitempty"`
}

func pcrsFromRaw(raw map[uint64][]byte) PCRs {
	return PCRs{
		ImageFileHash:   parsing.FormatPCR(raw[0]),
		KernelHash:      parsing.FormatPCR(raw[1]),
		ApplicationHash: parsing.FormatPCR(raw[2]),
		IAMRoleHash:     parsing.FormatPCR(raw[3]),
		InstanceIDHash:  parsing.FormatPCR(raw[4]),
		SigningCertHash: parsing.FormatPCR(raw[8]),
	}
}

// AttestationDoc represents the base structured attestation data from AWS Nitro Enclaves
// This contains the common fields shared by all attestation types
type AttestationDoc struct {
	// Module ID identifies the enclave
	ModuleID string `json:"module_id"`

	// Timestamp when the attestation was generated
	Timestamp time.Time `json:"timestamp"`

	// Digest algorithm used (e.g., "SHA384")
	DigestAlgorithm string `json:"digest"`

	// PCRs (Platform Configuration Registers) containing measurements
	PCRs PCRs `json:"pcrs"`

	// Certificate containing the attestation signature
	Certificate string `json:"certificate"`

	// Cabundle for certificate chain validation
	CABundle []string `json:"cabundle"`

	// Public key used for attestation
	PublicKey string `json:"public_key"`

	// Nonce for replay protection
	Nonce string `json:"nonce"`
}

// ReceiptAttestationDoc is a settlement receipt: an attestation whose user data
// describes the auction outcome.
type ReceiptAttestationDoc struct {
	AttestationDoc
	UserData *ReceiptUserData `json:"user_data"`
}

// ConfigAttestationDoc attests the terms an auction runs under.
type ConfigAttestationDoc struct {
	AttestationDoc
	UserData *ConfigUserData `json:"user_data"`
}

// ReceiptUserData is the outcome data embedded in a settlement receipt.
// Bid records are hashed so that the receipt does not disclose who bid what;
// each bidder recomputes their own record hash to find their slot.
type ReceiptUserData struct {
	ReceiptID       string    `json:"receipt_id"`
	AuctionID       string    `json:"auction_id"`
	Phase           string    `json:"phase"`
	EndTime         time.Time `json:"end_time"`
	Winner          string    `json:"winner,omitempty"`
	WinningAmount   string    `json:"winning_amount"`
	FundsWithdrawn  bool      `json:"funds_withdrawn"`
	TotalDeposits   string    `json:"total_deposits"`
	BidRecordHashes []string  `json:"bid_record_hashes"`
	BidRecordNonce  string    `json:"bid_record_nonce"`
	HistoryHash     string    `json:"history_hash"`
	HistoryNonce    string    `json:"history_nonce"`
	ConfigHash      string    `json:"config_hash"`
	ConfigNonce     string    `json:"config_nonce"`
	Timestamp       time.Time `json:"timestamp"`
}

// ConfigUserData is the data embedded in a config attestation.
type ConfigUserData struct {
	AuctionID   string `json:"auction_id"`
	Owner       string `json:"owner"`
	ConfigHash  string `json:"config_hash"`
	ConfigNonce string `json:"config_nonce"`
	// RequestToken is a single-use request id issued by the enclave. It is
	// remembered until it expires and consumed by the first mutating request
	// that carries it as request_id.
	RequestToken string    `json:"request_token"`
	Timestamp    time.Time `json:"timestamp"`
}
