package local

import (
	"context"
	"testing"

	"github.com/cuemby/jitca/pkg/authz"
	"github.com/cuemby/jitca/pkg/config"
)

func TestAuthorizeSSHCert_UnknownIdentityIsRejected(t *testing.T) {
	backend := New(map[string]Principal{}, nil)
	_, err := backend.AuthorizeSSHCert(context.Background(), authz.SSHRequest{MTLSIdentities: []string{"nobody"}})
	if err == nil {
		t.Fatal("expected an error for an unconfigured identity")
	}
	if !authz.IsNotAuthorized(err) {
		t.Errorf("error = %v, want a NotAuthorized error", err)
	}
}

func TestAuthorizeSSHCert_RejectsUnpermittedPrincipal(t *testing.T) {
	backend := New(map[string]Principal{
		"alice": {MTLSIdentities: []string{"alice"}, SSHPrincipals: []string{"alice"}, Authority: "default"},
	}, nil)

	_, err := backend.AuthorizeSSHCert(context.Background(), authz.SSHRequest{
		MTLSIdentities: []string{"alice"},
		Principals:     []string{"root"},
	})
	if err == nil || !authz.IsNotAuthorized(err) {
		t.Errorf("error = %v, want NotAuthorized for an unpermitted principal", err)
	}
}

func TestAuthorizeSSHCert_SerialsIncreaseMonotonically(t *testing.T) {
	backend := New(map[string]Principal{
		"alice": {MTLSIdentities: []string{"alice"}, SSHPrincipals: []string{"alice"}, Authority: "default"},
	}, nil)

	req := authz.SSHRequest{MTLSIdentities: []string{"alice"}, Principals: []string{"alice"}}
	first, err := backend.AuthorizeSSHCert(context.Background(), req)
	if err != nil {
		t.Fatalf("AuthorizeSSHCert() error = %v", err)
	}
	second, err := backend.AuthorizeSSHCert(context.Background(), req)
	if err != nil {
		t.Fatalf("AuthorizeSSHCert() error = %v", err)
	}
	if second.Serial <= first.Serial {
		t.Errorf("serial did not increase: %d then %d", first.Serial, second.Serial)
	}
}

func TestRegisterKey_RequiresAnIdentity(t *testing.T) {
	backend := New(nil, nil)
	err := backend.RegisterKey(context.Background(), authz.RegisterKeyRequest{})
	if err == nil || !authz.IsNotAuthorized(err) {
		t.Errorf("error = %v, want NotAuthorized with no mTLS identity presented", err)
	}
}

func TestGetAllowedSigners_ReturnsACopy(t *testing.T) {
	backend := New(nil, []authz.AllowedSigner{{Identity: "alice", Pubkey: "ssh-ed25519 AAAA"}})

	got, err := backend.GetAllowedSigners(context.Background())
	if err != nil {
		t.Fatalf("GetAllowedSigners() error = %v", err)
	}
	got[0].Identity = "mutated"

	again, err := backend.GetAllowedSigners(context.Background())
	if err != nil {
		t.Fatalf("GetAllowedSigners() error = %v", err)
	}
	if again[0].Identity != "alice" {
		t.Error("mutating a returned slice must not affect the backend's stored signers")
	}
}

func TestReplace_SwapsAllowedSigners(t *testing.T) {
	backend := New(nil, []authz.AllowedSigner{{Identity: "alice"}})
	backend.Replace([]authz.AllowedSigner{{Identity: "bob"}})

	got, err := backend.GetAllowedSigners(context.Background())
	if err != nil {
		t.Fatalf("GetAllowedSigners() error = %v", err)
	}
	if len(got) != 1 || got[0].Identity != "bob" {
		t.Errorf("GetAllowedSigners() = %v, want [{bob}]", got)
	}
}

func TestFromConfig_IndexesPrincipalsByEveryMTLSIdentity(t *testing.T) {
	backend := FromConfig(config.Authorization{
		LocalPrincipals: []config.LocalPrincipal{
			{MTLSIdentities: []string{"alice", "alice-backup"}, SSHPrincipals: []string{"alice"}, Authority: "default"},
		},
		LocalAllowedSigners: []config.LocalAllowedSigner{
			{Identity: "alice", Pubkey: "ssh-ed25519 AAAA"},
		},
	})

	for _, id := range []string{"alice", "alice-backup"} {
		if _, err := backend.AuthorizeSSHCert(context.Background(), authz.SSHRequest{
			MTLSIdentities: []string{id},
			Principals:     []string{"alice"},
		}); err != nil {
			t.Errorf("AuthorizeSSHCert(%q) error = %v", id, err)
		}
	}

	signers, err := backend.GetAllowedSigners(context.Background())
	if err != nil {
		t.Fatalf("GetAllowedSigners() error = %v", err)
	}
	if len(signers) != 1 || signers[0].Identity != "alice" {
		t.Errorf("GetAllowedSigners() = %v, want one entry for alice", signers)
	}
}
