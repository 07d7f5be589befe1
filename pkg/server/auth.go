// Copyright (C) 2025-2026 Kraklabs. All rights reserved.
// Use of this source code is governed by the AGPL-3.0
// license that can be found in the LICENSE file.

package server

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// MinPasswordLen is the minimum length accepted for the root password.
const MinPasswordLen = 8

const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
	saltLen      = 16
)

// credential holds the argon2id digest of the root password. The plaintext
// is never retained after New returns.
type credential struct {
	salt []byte
	hash []byte
}

func newCredential(password string) (credential, error) {
	if len(password) < MinPasswordLen {
		return credential{}, fmt.Errorf("password must be at least %d characters: %w", MinPasswordLen, ErrWeakCredential)
	}
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return credential{}, fmt.Errorf("generate salt: %w", err)
	}
	hash := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return credential{salt: salt, hash: hash}, nil
}

func (c credential) verify(password string) bool {
	probe := argon2.IDKey([]byte(password), c.salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return subtle.ConstantTimeCompare(probe, c.hash) == 1
}
