package aws

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/cronverge/cronverge/pkg/engine"
)

// policyVersion is the IAM policy language version.
const policyVersion = "2012-10-17"

// assumeRoleAction is the action granted to trusted services.
const assumeRoleAction = "sts:AssumeRole"

// policyDocument is the wire form of an IAM policy document.
type policyDocument struct {
	Version   string            `json:"Version"`
	Statement []policyStatement `json:"Statement"`
}

// policyStatement is one statement in wire form. Action, Resource, and
// condition values accept both string and array encodings on read; rendering
// always emits arrays.
type policyStatement struct {
	Sid       string                           `json:"Sid,omitempty"`
	Effect    string                           `json:"Effect"`
	Principal *principal                       `json:"Principal,omitempty"`
	Action    stringList                       `json:"Action,omitempty"`
	Resource  stringList                       `json:"Resource,omitempty"`
	Condition map[string]map[string]stringList `json:"Condition,omitempty"`
}

// principal is the statement principal.
type principal struct {
	Service stringList `json:"Service,omitempty"`
	AWS     stringList `json:"AWS,omitempty"`
}

// stringList unmarshals both "a" and ["a","b"], the two encodings the policy
// language allows for value lists.
type stringList []string

func (s *stringList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*s = stringList{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*s = stringList(many)
	return nil
}

// renderTrustPolicy renders the assume-role policy for the trusted services.
func renderTrustPolicy(services []string) (string, error) {
	doc := policyDocument{
		Version: policyVersion,
		Statement: []policyStatement{
			{
				Effect:    "Allow",
				Principal: &principal{Service: stringList(services)},
				Action:    stringList{assumeRoleAction},
			},
		},
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("render trust policy: %w", err)
	}
	return string(data), nil
}

// renderPolicyDocument renders inline policy statements in wire form.
func renderPolicyDocument(statements []engine.PolicyStatement) (string, error) {
	doc := policyDocument{
		Version:   policyVersion,
		Statement: make([]policyStatement, 0, len(statements)),
	}
	for _, st := range statements {
		doc.Statement = append(doc.Statement, policyStatement{
			Sid:      st.Sid,
			Effect:   st.Effect,
			Action:   stringList(st.Actions),
			Resource: stringList(st.Resources),
		})
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("render policy document: %w", err)
	}
	return string(data), nil
}

// parsePolicyDocument parses an inline policy document. IAM returns the
// document URL-encoded.
func parsePolicyDocument(encoded string) ([]engine.PolicyStatement, error) {
	decoded, err := url.QueryUnescape(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode policy document: %w", err)
	}

	var doc policyDocument
	if err := json.Unmarshal([]byte(decoded), &doc); err != nil {
		return nil, fmt.Errorf("parse policy document: %w", err)
	}

	statements := make([]engine.PolicyStatement, 0, len(doc.Statement))
	for _, st := range doc.Statement {
		statements = append(statements, engine.PolicyStatement{
			Sid:       st.Sid,
			Effect:    st.Effect,
			Actions:   []string(st.Action),
			Resources: []string(st.Resource),
		})
	}
	return statements, nil
}

// parseTrustPolicy extracts the trusted service principals from an
// assume-role policy document. IAM returns the document URL-encoded.
func parseTrustPolicy(encoded string) ([]string, error) {
	decoded, err := url.QueryUnescape(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode trust policy: %w", err)
	}

	var doc policyDocument
	if err := json.Unmarshal([]byte(decoded), &doc); err != nil {
		return nil, fmt.Errorf("parse trust policy: %w", err)
	}

	var services []string
	for _, st := range doc.Statement {
		if st.Principal != nil {
			services = append(services, st.Principal.Service...)
		}
	}
	return services, nil
}

// parseResourcePolicy extracts permission grants from a function resource
// policy. Unlike role policies, the document arrives as plain JSON.
func parseResourcePolicy(doc string) ([]engine.ObservedPermission, error) {
	var parsed policyDocument
	if err := json.Unmarshal([]byte(doc), &parsed); err != nil {
		return nil, fmt.Errorf("parse resource policy: %w", err)
	}

	grants := make([]engine.ObservedPermission, 0, len(parsed.Statement))
	for _, st := range parsed.Statement {
		grant := engine.ObservedPermission{StatementID: st.Sid}
		if st.Principal != nil && len(st.Principal.Service) > 0 {
			grant.Principal = st.Principal.Service[0]
		}
		if len(st.Action) > 0 {
			grant.Action = st.Action[0]
		}
		if arnLike, ok := st.Condition["ArnLike"]; ok {
			if arns, ok := arnLike["AWS:SourceArn"]; ok && len(arns) > 0 {
				grant.SourceARN = arns[0]
			}
		}
		grants = append(grants, grant)
	}
	return grants, nil
}
