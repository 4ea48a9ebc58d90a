// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package trust checks certificates presented by SMP servers and access points
against a configured set of trust anchors.

# Verdicts

Check is a pure function of the certificate, the evaluation time and the
anchor set. It always returns exactly one Verdict, evaluated in this order:

 1. no certificate: VerdictNoCertificateProvided
 2. asOf before NotBefore: VerdictNotYetValid
 3. asOf after NotAfter: VerdictExpired
 4. no chain to the anchor root: VerdictUntrustedIssuer
 5. revocation source lists the certificate: VerdictRevoked
 6. revocation source cannot be evaluated: VerdictRevocationCheckFailed
 7. otherwise: VerdictValid

Verdicts are never returned as errors. Evaluate additionally reports the
reason behind a non-valid verdict for logging.

# Anchor sets

An AnchorSet is an explicit value holding the root, the intermediates and an
optional RevocationSource. Anchor sets are built by the caller, typically from
named configuration bundles:

	root, _ := trust.LoadCertificateFile("peppol-root.pem")
	inter, _ := trust.LoadCertificatesFile("peppol-smp-ca.pem")
	crl, _ := os.ReadFile("peppol-smp-ca.crl")

	anchors := trust.NewAnchorSet("Peppol2025", root, inter, trust.ParseCRLSource(crl))
	verdict := trust.Check(cert, time.Now(), anchors)

# Revocation

Revocation data is supplied already loaded: CRLSource wraps a parsed CRL,
OCSPSource wraps pre-fetched OCSP responses and MultiSource combines several
sources. Check never performs network I/O. CRLFetcher downloads CRLs from
explicitly configured URLs for callers that refresh anchor sets.
*/
package trust
