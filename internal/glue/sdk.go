package glue

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awsglue "github.com/aws/aws-sdk-go-v2/service/glue"
	"github.com/rs/zerolog/log"
)

// glueAPI is the part of the SDK client used here.
type glueAPI interface {
	StartJobRun(ctx context.Context, in *awsglue.StartJobRunInput, optFns ...func(*awsglue.Options)) (*awsglue.StartJobRunOutput, error)
	GetJobRun(ctx context.Context, in *awsglue.GetJobRunInput, optFns ...func(*awsglue.Options)) (*awsglue.GetJobRunOutput, error)
	StartCrawler(ctx context.Context, in *awsglue.StartCrawlerInput, optFns ...func(*awsglue.Options)) (*awsglue.StartCrawlerOutput, error)
	GetCrawler(ctx context.Context, in *awsglue.GetCrawlerInput, optFns ...func(*awsglue.Options)) (*awsglue.GetCrawlerOutput, error)
}

// SDKClient implements Client on top of aws-sdk-go-v2.
type SDKClient struct {
	api glueAPI
}

// NewSDKClient loads AWS configuration for conn and returns a Glue client.
func NewSDKClient(ctx context.Context, conn Connection) (Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if conn.Region != "" {
		opts = append(opts, awsconfig.WithRegion(conn.Region))
	}
	if conn.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(conn.Profile))
	}
	if conn.AccessKeyID != "" && conn.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(conn.AccessKeyID, conn.SecretAccessKey, conn.SessionToken),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	api := awsglue.NewFromConfig(cfg, func(o *awsglue.Options) {
		if conn.Endpoint != "" {
			o.BaseEndpoint = aws.String(conn.Endpoint)
		}
	})
	log.Debug().Str("region", cfg.Region).Str("profile", conn.Profile).Msg("Glue client ready")
	return &SDKClient{api: api}, nil
}

func (c *SDKClient) StartJobRun(ctx context.Context, jobName string, args map[string]string) (string, error) {
	in := &awsglue.StartJobRunInput{JobName: aws.String(jobName)}
	if len(args) > 0 {
		in.Arguments = args
	}
	out, err := c.api.StartJobRun(ctx, in)
	if err != nil {
		return "", err
	}
	return aws.ToString(out.JobRunId), nil
}

func (c *SDKClient) GetJobRun(ctx context.Context, jobName, runID string) (JobRun, error) {
	out, err := c.api.GetJobRun(ctx, &awsglue.GetJobRunInput{
		JobName: aws.String(jobName),
		RunId:   aws.String(runID),
	})
	if err != nil {
		return JobRun{}, err
	}
	if out.JobRun == nil {
		return JobRun{}, fmt.Errorf("job run %s: empty response", runID)
	}
	return JobRun{
		ID:           aws.ToString(out.JobRun.Id),
		State:        string(out.JobRun.JobRunState),
		ErrorMessage: aws.ToString(out.JobRun.ErrorMessage),
	}, nil
}

func (c *SDKClient) StartCrawler(ctx context.Context, name string) error {
	_, err := c.api.StartCrawler(ctx, &awsglue.StartCrawlerInput{Name: aws.String(name)})
	return err
}

func (c *SDKClient) GetCrawler(ctx context.Context, name string) (Crawler, error) {
	out, err := c.api.GetCrawler(ctx, &awsglue.GetCrawlerInput{Name: aws.String(name)})
	if err != nil {
		return Crawler{}, err
	}
	if out.Crawler == nil {
		return Crawler{}, fmt.Errorf("crawler %s: empty response", name)
	}
	cr := Crawler{
		Name:  aws.ToString(out.Crawler.Name),
		State: string(out.Crawler.State),
	}
	if lc := out.Crawler.LastCrawl; lc != nil {
		cr.LastCrawl = &LastCrawl{
			Status:       string(lc.Status),
			ErrorMessage: aws.ToString(lc.ErrorMessage),
		}
	}
	return cr, nil
}
