// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package keystore extracts signing material from PKCS#12 (.pfx/.p12)
containers.

eSocial submissions are signed with an ICP-Brasil A1 certificate that the
caller uploads together with its password for every request. [Extract]
decodes the container in memory and returns a [Material] holding the
private key and certificate both as PEM text and as parsed handles:

	m, err := keystore.Extract(pfx, password)
	if err != nil {
	    var xerr *keystore.ExtractionError
	    // errors.As(err, &xerr); errors.Is(err, keystore.ErrIncorrectPassword)
	}
	defer m.Clear()

Material is owned by the request that extracted it. It is never cached,
logged or written anywhere by this module, and Clear drops every reference
once the request is done.
*/
package keystore
