// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package ec

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
)

// SaltedPasswordHash computes the login digest for the two-step
// handshake: the hex md5 of the password concatenated with the hex md5
// of the salt printed as uppercase hex, hashed once more.
func SaltedPasswordHash(password string, salt uint64) []byte {
	passHash := md5Hex([]byte(password))
	saltHash := md5Hex([]byte(fmt.Sprintf("%X", salt)))

	sum := md5.Sum([]byte(passHash + saltHash))
	return sum[:]
}

func md5Hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}
