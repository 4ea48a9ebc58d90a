// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package smp fetches and parses Service Metadata Publisher documents.

Both OASIS SMP 1.0 (the Peppol profile) and OASIS SMP 2.0 documents are
understood; the version is detected from the document root. Element lookup
ignores namespace prefixes.

# Signed Service Metadata

GetSignedServiceMetadata validates the enveloped XML signature of the
document against the certificate embedded in its KeyInfo. The signing
certificate is returned to the caller, who decides whether it is trusted
(see package trust):

	client := smp.NewClient(smp.WithHTTPClient(transport.NewHTTPSClient(nil)))

	signed, err := client.GetSignedServiceMetadata(ctx, smpURL, participant, docType)
	if err != nil {
		return err
	}
	verdict := trust.Check(signed.SigningCertificate, time.Now(), smpAnchors)

Redirects are followed once. The target document must be signed by the
certificate named in the redirect.

# URL Layout

Identifiers are percent-encoded in their "<scheme>::<value>" form:

	{smp}/{participant}                              ServiceGroup
	{smp}/{participant}/services/{documentType}      ServiceMetadata

SMP 2.0 prefixes both paths with "bdxr-smp-2/".
*/
package smp
