package rule

import (
	"github.com/changeguard/changeguard/pkg/changeset"
)

// Builtins returns the built-in guardrail rules. They target the
// bucket-style storage resources the engine grew up policing; callers that
// do not want them simply load their own rule set instead.
func Builtins() []Rule {
	return []Rule{
		bucketVersioningRule(),
		bucketEncryptionKeyRule(),
		bucketPublicAccessBlockRule(),
		bucketACLNotPublicRule(),
		bucketLoggingRule(),
		kmsKeyRotationRule(),
	}
}

// bucketVersioningRule requires versioning to be enabled on bucket
// versioning resources.
func bucketVersioningRule() Rule {
	return Rule{
		ID:          "bucket-versioning-enabled",
		Description: "Bucket versioning must be enabled",
		TargetType:  "aws_s3_bucket_versioning",
		Severity:    SeverityError,
		Enabled:     true,
		Message:     "bucket versioning must be enabled for {address}",
		Predicate: &Exists{
			Binding:    "vc",
			Collection: changeset.MustParsePath("after.versioning_configuration"),
			Inner: &Equals{
				Path:  changeset.MustParsePath("$vc.status"),
				Value: "Enabled",
			},
		},
	}
}

// bucketEncryptionKeyRule requires bucket default encryption to name a
// customer-managed KMS key somewhere in its rule list. The inner
// not_equals needs a present, non-null key id as its witness, so a
// missing key id fails the rule.
func bucketEncryptionKeyRule() Rule {
	return Rule{
		ID:          "bucket-encryption-customer-key",
		Description: "Bucket default encryption must use a customer-managed KMS key",
		TargetType:  "aws_s3_bucket_server_side_encryption_configuration",
		Severity:    SeverityCritical,
		Enabled:     true,
		Message:     "bucket encryption for {address} must specify a customer-managed KMS key",
		Predicate: &Exists{
			Binding:    "r",
			Collection: changeset.MustParsePath("after.rule"),
			Inner: &Exists{
				Binding:    "k",
				Collection: changeset.MustParsePath("$r.apply_server_side_encryption_by_default"),
				Inner: &And{Children: []Predicate{
					&Equals{
						Path:  changeset.MustParsePath("$k.sse_algorithm"),
						Value: "aws:kms",
					},
					&NotEquals{
						Path:  changeset.MustParsePath("$k.kms_master_key_id"),
						Value: nil,
					},
				}},
			},
		},
	}
}

// bucketPublicAccessBlockRule requires all four public-access-block
// toggles to be on.
func bucketPublicAccessBlockRule() Rule {
	return Rule{
		ID:          "bucket-public-access-block",
		Description: "All public access block settings must be enabled",
		TargetType:  "aws_s3_bucket_public_access_block",
		Severity:    SeverityCritical,
		Enabled:     true,
		Message:     "public access block for {address} must enable all four settings",
		Predicate: &And{Children: []Predicate{
			&Equals{Path: changeset.MustParsePath("after.block_public_acls"), Value: true},
			&Equals{Path: changeset.MustParsePath("after.block_public_policy"), Value: true},
			&Equals{Path: changeset.MustParsePath("after.ignore_public_acls"), Value: true},
			&Equals{Path: changeset.MustParsePath("after.restrict_public_buckets"), Value: true},
		}},
	}
}

// bucketACLNotPublicRule rejects public-read ACLs. The negation reads no
// quantifier variables, which keeps it safe without an enclosing exists.
func bucketACLNotPublicRule() Rule {
	return Rule{
		ID:          "bucket-acl-not-public",
		Description: "Bucket ACL must not grant public read",
		TargetType:  "aws_s3_bucket_acl",
		Severity:    SeverityError,
		Enabled:     true,
		Message:     "bucket ACL for {address} must not be public-read",
		Predicate: &Not{
			Inner: &Equals{
				Path:  changeset.MustParsePath("after.acl"),
				Value: "public-read",
			},
		},
	}
}

// bucketLoggingRule requires access logging to name a target bucket.
func bucketLoggingRule() Rule {
	return Rule{
		ID:          "bucket-logging-configured",
		Description: "Bucket access logging must name a target bucket",
		TargetType:  "aws_s3_bucket_logging",
		Severity:    SeverityWarning,
		Enabled:     true,
		Message:     "access logging for {address} must deliver to a target bucket",
		Predicate: &NotEquals{
			Path:  changeset.MustParsePath("after.target_bucket"),
			Value: nil,
		},
	}
}

// kmsKeyRotationRule requires automatic key rotation on KMS keys.
func kmsKeyRotationRule() Rule {
	return Rule{
		ID:          "kms-key-rotation-enabled",
		Description: "KMS keys must have automatic rotation enabled",
		TargetType:  "aws_kms_key",
		Severity:    SeverityError,
		Enabled:     true,
		Message:     "KMS key {address} must enable automatic rotation",
		Predicate: &Equals{
			Path:  changeset.MustParsePath("after.enable_key_rotation"),
			Value: true,
		},
	}
}
