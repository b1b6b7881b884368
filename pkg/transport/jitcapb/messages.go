package jitcapb

// Message field names and shapes mirror the RPC surface exactly; JSON
// tags use the same snake_case the original wire format used so a
// byte-for-byte textual diff of a captured request reads the same
// regardless of codec.

type ChallengeRequest struct {
	Pubkey string `json:"pubkey"`
}

type ChallengeResponse struct {
	Time                string `json:"time"`
	Challenge           string `json:"challenge"`
	NoSignatureRequired bool   `json:"no_signature_required"`
}

type CertificateRequest struct {
	Challenge   *Challenge `json:"challenge"`
	CertType    int32      `json:"cert_type"`
	KeyID       string     `json:"key_id"`
	Principals  []string   `json:"principals"`
	Servers     []string   `json:"servers"`
	ValidBefore uint64     `json:"valid_before"`
	ValidAfter  uint64     `json:"valid_after"`
}

// Challenge is the proof-of-possession triple every protected RPC
// carries: the caller's claimed public key, the time it was challenged
// at, and the server-signed challenge certificate proving it.
type Challenge struct {
	Pubkey               string `json:"pubkey"`
	ChallengeTime        string `json:"challenge_time"`
	ChallengeCertificate string `json:"challenge"`
}

type CertificateResponse struct {
	Certificate          string `json:"certificate"`
	Error                string `json:"error"`
	ErrorCode            int64  `json:"error_code"`
	NewClientCertificate string `json:"new_client_certificate"`
	NewClientKey         string `json:"new_client_key"`
}

type RegisterKeyRequest struct {
	Challenge    *Challenge `json:"challenge"`
	Certificate  []byte     `json:"certificate"`
	Intermediate []byte     `json:"intermediate"`
}

type RegisterKeyResponse struct{}

type RegisterU2fKeyRequest struct {
	Challenge          *Challenge `json:"challenge"`
	AuthData           []byte     `json:"auth_data"`
	AuthDataSignature  []byte     `json:"auth_data_signature"`
	Intermediate       []byte     `json:"intermediate"`
	Alg                int32      `json:"alg"`
	U2fChallenge       []byte     `json:"u2f_challenge"`
	SkApplication      []byte     `json:"sk_application"`
	U2fChallengeHashed bool       `json:"u2f_challenge_hashed"`
}

type RegisterU2fKeyResponse struct{}

type AttestedX509CertificateRequest struct {
	Csr                     []byte `json:"csr"`
	Attestation             []byte `json:"attestation"`
	AttestationIntermediate []byte `json:"attestation_intermediate"`
	KeyID                   string `json:"key_id"`
}

type AttestedX509CertificateResponse struct {
	Certificate []byte `json:"certificate"`
	Error       string `json:"error"`
	ErrorCode   int64  `json:"error_code"`
}

type AllowedSignersRequest struct{}

type AllowedSignersResponse struct {
	CompressedAllowedSigners []byte `json:"compressed_allowed_signers"`
}
