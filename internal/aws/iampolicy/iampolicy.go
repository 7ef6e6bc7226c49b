// Package iampolicy decodes IAM trust policies as returned by the IAM
// API.
package iampolicy

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// Values is a policy value that may be written as a single string or a
// list of strings.
type Values []string

// UnmarshalJSON accepts both forms.
func (v *Values) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		*v = Values{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*v = many
	return nil
}

// Principal maps a principal type ("Service", "Federated", "AWS") to its
// values. A "*" principal decodes to an empty map.
type Principal map[string]Values

// UnmarshalJSON accepts both an object and the "*" wildcard.
func (p *Principal) UnmarshalJSON(b []byte) error {
	var wildcard string
	if err := json.Unmarshal(b, &wildcard); err == nil {
		*p = Principal{}
		return nil
	}
	m := map[string]Values{}
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	*p = m
	return nil
}

// Statement is a single policy statement.
type Statement struct {
	Effect    string    `json:"Effect"`
	Principal Principal `json:"Principal"`
	Action    Values    `json:"Action"`
}

// Document is a trust policy.
type Document struct {
	Version   string      `json:"Version"`
	Statement []Statement `json:"Statement"`
}

// Decode parses a URL encoded policy document.
func Decode(encoded string) (*Document, error) {
	decoded, err := url.QueryUnescape(encoded)
	if err != nil {
		return nil, errors.Wrap(err, "policy document is not URL encoded")
	}
	doc := &Document{}
	if err := json.Unmarshal([]byte(decoded), doc); err != nil {
		return nil, errors.Wrap(err, "policy document is not valid JSON")
	}
	return doc, nil
}

// Services returns the short names ("lambda", "ec2") of every service
// principal in the document.
func (d *Document) Services() []string {
	var services []string
	for _, st := range d.Statement {
		for _, s := range st.Principal["Service"] {
			services = append(services, strings.SplitN(s, ".", 2)[0])
		}
	}
	return services
}

// FederatedAccount returns the account of the identity provider named
// in the first statement, if there is one.
func (d *Document) FederatedAccount() (string, bool) {
	if len(d.Statement) == 0 {
		return "", false
	}
	federated := d.Statement[0].Principal["Federated"]
	if len(federated) == 0 {
		return "", false
	}
	parts := strings.Split(federated[0], ":")
	if len(parts) < 5 || parts[4] == "" {
		return "", false
	}
	return parts[4], true
}
