// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package keychain persists this instance's and its owning Person's
// long-term Curve25519 key pairs in a passphrase-encrypted file
// (spec.md §6 persisted-state item (d)). Loading it is the instance's
// one Fatal startup failure mode (spec.md §7): a missing or
// undecryptable keychain means there is no identity to run as.
package keychain

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"

	"github.com/kittwire/core/internal/corecrypto"
	"github.com/kittwire/core/internal/corerrors"
)

const (
	scryptN      = 1 << 15
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
	saltSize     = 16
	nonceSize    = 24
)

// Keychain holds the two long-term identity key pairs this instance
// needs: one for the local Person, one for the Instance object itself
// (spec.md §4.E's Instance/Person distinction).
type Keychain struct {
	PersonKeys   corecrypto.KeyPair
	InstanceKeys corecrypto.KeyPair
}

type plaintextKeys struct {
	PersonPublic     [32]byte
	PersonPrivate    [32]byte
	InstancePublic   [32]byte
	InstancePrivate  [32]byte
}

// Generate creates a fresh Keychain with new key pairs for both
// identities, for first-run instance setup.
func Generate() (Keychain, error) {
	person, err := corecrypto.GenerateKeyPair()
	if err != nil {
		return Keychain{}, fmt.Errorf("keychain: generate person keys: %w", err)
	}
	instance, err := corecrypto.GenerateKeyPair()
	if err != nil {
		return Keychain{}, fmt.Errorf("keychain: generate instance keys: %w", err)
	}
	return Keychain{PersonKeys: person, InstanceKeys: instance}, nil
}

// Save encrypts kc under a key derived from passphrase via scrypt and
// writes it to path, replacing any existing file.
func Save(path string, kc Keychain, passphrase []byte) error {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("keychain: generate salt: %w", err)
	}
	key, err := deriveKey(passphrase, salt)
	if err != nil {
		return err
	}

	plain := plaintextKeys{
		PersonPublic:    kc.PersonKeys.Public,
		PersonPrivate:   kc.PersonKeys.Private,
		InstancePublic:  kc.InstanceKeys.Public,
		InstancePrivate: kc.InstanceKeys.Private,
	}
	raw, err := json.Marshal(plain)
	if err != nil {
		return fmt.Errorf("keychain: marshal keys: %w", err)
	}

	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return fmt.Errorf("keychain: generate nonce: %w", err)
	}
	sealed := secretbox.Seal(nil, raw, &nonce, &key)

	file := onDiskFile{Salt: salt, Nonce: nonce[:], Sealed: sealed}
	out, err := json.Marshal(file)
	if err != nil {
		return fmt.Errorf("keychain: marshal keychain file: %w", err)
	}
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return fmt.Errorf("keychain: write %s: %w", path, err)
	}
	return nil
}

// Load decrypts the keychain at path using passphrase. A missing
// file, wrong passphrase, or corrupt contents all surface as a
// corerrors.Fatal error: the caller (cmd/coreinstance) is expected to
// log.Fatalf on it, since there is no safe way to run without an
// identity.
func Load(path string, passphrase []byte) (Keychain, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Keychain{}, corerrors.Wrap("keychain.load", corerrors.Fatal, fmt.Errorf("read %s: %w", path, err))
	}

	var file onDiskFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return Keychain{}, corerrors.Wrap("keychain.load", corerrors.Fatal, fmt.Errorf("parse keychain file: %w", err))
	}
	if len(file.Nonce) != nonceSize {
		return Keychain{}, corerrors.Wrap("keychain.load", corerrors.Fatal, errors.New("keychain file has a malformed nonce"))
	}

	key, err := deriveKey(passphrase, file.Salt)
	if err != nil {
		return Keychain{}, corerrors.Wrap("keychain.load", corerrors.Fatal, err)
	}

	var nonce [nonceSize]byte
	copy(nonce[:], file.Nonce)
	plainRaw, ok := secretbox.Open(nil, file.Sealed, &nonce, &key)
	if !ok {
		return Keychain{}, corerrors.Wrap("keychain.load", corerrors.Fatal, errors.New("wrong passphrase or corrupt keychain file"))
	}

	var plain plaintextKeys
	if err := json.Unmarshal(plainRaw, &plain); err != nil {
		return Keychain{}, corerrors.Wrap("keychain.load", corerrors.Fatal, fmt.Errorf("parse decrypted keys: %w", err))
	}

	return Keychain{
		PersonKeys:   corecrypto.KeyPair{Public: plain.PersonPublic, Private: plain.PersonPrivate},
		InstanceKeys: corecrypto.KeyPair{Public: plain.InstancePublic, Private: plain.InstancePrivate},
	}, nil
}

type onDiskFile struct {
	Salt   []byte `json:"salt"`
	Nonce  []byte `json:"nonce"`
	Sealed []byte `json:"sealed"`
}

func deriveKey(passphrase, salt []byte) ([32]byte, error) {
	var key [32]byte
	derived, err := scrypt.Key(passphrase, salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return key, fmt.Errorf("keychain: derive key: %w", err)
	}
	copy(key[:], derived)
	return key, nil
}
