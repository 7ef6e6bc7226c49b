package resourcearn

import "testing"

func TestParse(t *testing.T) {
	cases := map[string]string{
		"arn:aws:ec2:us-east-1:123456789012:instance/i-0abc":     "ec2:instance/i-0abc",
		"arn:aws:lambda:us-east-1:123456789012:function:api":     "lambda:function:api",
		"arn:aws:s3:::xc3-metadata-storage":                      "s3:xc3-metadata-storage",
		"arn:aws:ec2:eu-west-1:123456789012:vpc/vpc-0123456789a": "ec2:vpc/vpc-0123456789a",
	}
	for in, want := range cases {
		got, err := Parse(in)
		if err != nil {
			t.Fatalf("ERROR: Parse(%q) returned %v", in, err)
		}
		if got != want {
			t.Errorf("Parse(%q) = %v, \nwant = %v", in, got, want)
		}
	}
	if _, err := Parse("not-an-arn"); err == nil {
		t.Error("ERROR: expected an invalid ARN error")
	}
}

func TestShort(t *testing.T) {
	cases := map[string]string{
		"arn:aws:ec2:us-east-1:123456789012:instance/i-0abc": "ec2:instance/i-0abc",
		"arn:aws:lambda:us-east-1:123456789012:function:api": "lambda:function:api",
		"arn:aws:s3:::xc3-metadata-storage":                  "s3:xc3-metadata-storage",
	}
	for in, want := range cases {
		if got := Short(in); got != want {
			t.Errorf("Short(%q) = %v, \nwant = %v", in, got, want)
		}
	}
}

func TestFields(t *testing.T) {
	a := "arn:aws:lambda:eu-west-1:123456789012:function:api"
	if Service(a) != "lambda" || Account(a) != "123456789012" || Region(a) != "eu-west-1" {
		t.Errorf("fields of %q parsed incorrectly", a)
	}
	if Region("arn:aws:s3:::bucket") != "" {
		t.Error("ERROR: S3 buckets have no region")
	}
	if got := ResourceID("arn:aws:ec2:us-east-1:123456789012:instance/i-0abc"); got != "i-0abc" {
		t.Errorf("ResourceID() = %v", got)
	}
	if got := ResourceID("arn:aws:lambda:us-east-1:123456789012:function:api"); got != "api" {
		t.Errorf("ResourceID() = %v", got)
	}
}
