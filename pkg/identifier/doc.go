// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

// Package identifier canonicalizes participant and document identifiers.
//
// An identifier is a (scheme, value) pair. Before an identifier is hashed into
// a DNS name it is brought into canonical form: the scheme is lower-cased and
// checked against the identifier-scheme character class, the value is kept
// exactly as supplied. The same participant therefore always maps to the same
// DNS name regardless of the casing the caller used for the scheme.
//
// # Formats
//
// The URI-encoded form joins scheme and value with a double colon:
//
//	iso6523-actorid-upis::0088:4035811991021
//
// ebCore Party Identifiers carry catalog and scheme inside a URN:
//
//	urn:oasis:names:tc:ebcore:partyid-type:iso6523:0088:4035811991021
//
// PEPPOL participant values use the ISO 6523 scheme code as a prefix:
//
//	0088:4035811991021
package identifier
