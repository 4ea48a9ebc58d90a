// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

// Package naptr resolves a derived DNS name to the URL of the service
// metadata publisher using U-NAPTR records (RFC 4848).
//
// # Record selection
//
// Only records with the "U" flag and one of the configured service tags
// ("Meta:SMP" and "oasis-bdxr-smp-2" by default) are considered. Candidates are
// ordered by order, then preference, lowest first. The regular expression of the
// best candidate is applied to the application unique string, which is the
// queried name without its trailing dot. A candidate whose rewrite fails is
// skipped in favour of the next one.
//
// # Failures
//
// Two failure kinds are distinguished so callers can decide on retries:
//
//   - [ErrResolutionFailed]: the DNS query itself failed (timeout, NXDOMAIN,
//     SERVFAIL, transport error). The returned [*ResolutionError] carries the cause.
//   - [ErrNoRecordFound]: the query succeeded but no usable record exists.
//
// The resolver issues at most one query per call and never retries.
//
// # DNS access
//
// DNS access is abstracted by the [Lookup] interface. [DNSLookup] implements it
// with github.com/miekg/dns; tests substitute a static record table.
package naptr
