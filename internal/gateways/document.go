// internal/gateways/document.go
package gateways

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/ndakohub/ndako-backend/internal/config"
)

// ContractSnapshot is the immutable data handed to the renderer on the
// fully_signed transition. The coordinator stores only the returned
// document reference.
type ContractSnapshot struct {
	ContractID    string
	ReferenceCode string
	LandlordName  string
	TenantName    string
	MonthlyAmount string
	Currency      string
	StartDate     time.Time
	EndDate       time.Time
	ContentHash   string
	SignedAt      time.Time
	CustomFields  map[string]interface{}
}

// DocumentGenerator renders the signed agreement and returns a durable
// reference to the stored artifact.
type DocumentGenerator interface {
	Render(ctx context.Context, snapshot ContractSnapshot) (string, error)
}

// S3DocumentGenerator renders the agreement from an HTML template and
// stores the result in S3. The returned reference is the object key.
type S3DocumentGenerator struct {
	s3Client *s3.S3
	config   *config.Config
	tmpl     *template.Template
}

func NewS3DocumentGenerator(cfg *config.Config) (*S3DocumentGenerator, error) {
	tmpl, err := template.New("contract").Parse(contractTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse contract template: %w", err)
	}

	gen := &S3DocumentGenerator{config: cfg, tmpl: tmpl}
	if cfg.AWS.AccessKeyID == "" {
		// Local development keeps rendering but skips the upload.
		return gen, nil
	}

	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(cfg.AWS.Region),
		Credentials: credentials.NewStaticCredentials(
			cfg.AWS.AccessKeyID,
			cfg.AWS.SecretAccessKey,
			"",
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	gen.s3Client = s3.New(sess)
	return gen, nil
}

func (g *S3DocumentGenerator) Render(ctx context.Context, snapshot ContractSnapshot) (string, error) {
	var buf bytes.Buffer
	if err := g.tmpl.Execute(&buf, snapshot); err != nil {
		return "", fmt.Errorf("failed to render contract document: %w", err)
	}

	key := fmt.Sprintf("contracts/%s/%s.html", snapshot.ContractID, snapshot.ContentHash)

	if g.s3Client == nil {
		return key, nil
	}

	_, err := g.s3Client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(g.config.AWS.S3Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(buf.Bytes()),
		ContentType:   aws.String("text/html; charset=utf-8"),
		ContentLength: aws.Int64(int64(buf.Len())),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload contract document: %w", err)
	}

	return key, nil
}

const contractTemplate = `
<!DOCTYPE html>
<html>
<body>
	<h1>Contrat de bail — {{.ReferenceCode}}</h1>
	<p>Between {{.LandlordName}} (landlord) and {{.TenantName}} (tenant).</p>
	<p>Monthly rent: {{.MonthlyAmount}} {{.Currency}}</p>
	<p>Period: {{.StartDate.Format "2006-01-02"}} to {{.EndDate.Format "2006-01-02"}}</p>
	<p>Signed at {{.SignedAt.Format "2006-01-02 15:04:05 MST"}}</p>
	<p>Content hash: {{.ContentHash}}</p>
</body>
</html>`
