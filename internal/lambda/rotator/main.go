package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
	"github.com/savaki/secret-sync/internal/di"
	"github.com/savaki/secret-sync/internal/services"
	"github.com/urfave/cli/v2"
)

const (
	stageCurrent = "AWSCURRENT"
	stagePending = "AWSPENDING"
)

type RotationEvent struct {
	Step               string `json:"Step"`
	Token              string `json:"Token"`
	SecretId           string `json:"SecretId"`
	ClientRequestToken string `json:"ClientRequestToken"`
}

// rotationAPI is the subset of the Secrets Manager client used during rotation
type rotationAPI interface {
	services.SecretsManagerAPI
	PutSecretValue(ctx context.Context, params *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error)
	DescribeSecret(ctx context.Context, params *secretsmanager.DescribeSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.DescribeSecretOutput, error)
	UpdateSecretVersionStage(ctx context.Context, params *secretsmanager.UpdateSecretVersionStageInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.UpdateSecretVersionStageOutput, error)
}

// Handler rotates the API key secret read by the secret-sync server. The secret is a
// JSON array of key versions, newest first, capped at services.MaxKeyVersions so
// callers holding the previous key keep working until they pick up the new one.
type Handler struct {
	client rotationAPI
	now    func() time.Time
}

func NewHandler(client rotationAPI) *Handler {
	return &Handler{
		client: client,
		now:    time.Now,
	}
}

func newAWSHandler(ctx context.Context) (*Handler, *secretsmanager.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := secretsmanager.NewFromConfig(cfg)
	return NewHandler(client), client, nil
}

// generateAPIKey returns 256 bits of random data, standard base64 encoded
func generateAPIKey() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.StdEncoding.EncodeToString(bytes), nil
}

func (h *Handler) HandleRotation(ctx context.Context, event RotationEvent) error {
	switch event.Step {
	case "createSecret":
		return h.createSecret(ctx, event)
	case "setSecret":
		return h.setSecret(ctx, event)
	case "testSecret":
		return h.testSecret(ctx, event)
	case "finishSecret":
		return h.finishSecret(ctx, event)
	default:
		return fmt.Errorf("unknown rotation step: %s", event.Step)
	}
}

// rotate prepends newKey to the valid versions of current and trims to MaxKeyVersions
func rotate(ctx context.Context, current []services.SecretVersion, newKey string, now time.Time) []services.SecretVersion {
	versions := []services.SecretVersion{{
		Secret:    newKey,
		Timestamp: now.UTC().Format(time.RFC3339),
	}}

	for _, v := range current {
		if len(versions) == services.MaxKeyVersions {
			break
		}
		if len(services.ValidVersions(ctx, []services.SecretVersion{v})) == 1 {
			versions = append(versions, v)
		}
	}

	return versions
}

// isNotFound reports whether err is a Secrets Manager ResourceNotFoundException
func isNotFound(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "ResourceNotFoundException"
}

// currentVersions reads the AWSCURRENT versions. A missing, empty or corrupt
// secret is treated as having no versions.
func (h *Handler) currentVersions(ctx context.Context, secretID string) []services.SecretVersion {
	logger := zerolog.Ctx(ctx)

	output, err := h.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId:     aws.String(secretID),
		VersionStage: aws.String(stageCurrent),
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to get current secret - starting fresh")
		return nil
	}

	if output.SecretString == nil || *output.SecretString == "" {
		logger.Warn().Msg("Secret is empty - starting fresh")
		return nil
	}

	var versions []services.SecretVersion
	if err := json.Unmarshal([]byte(*output.SecretString), &versions); err != nil {
		logger.Warn().Err(err).Msg("Current secret is corrupt (invalid JSON) - overwriting with fresh secret")
		return nil
	}

	return versions
}

func (h *Handler) createSecret(ctx context.Context, event RotationEvent) error {
	logger := zerolog.Ctx(ctx)

	// a retried createSecret must not mint a second key for the same token
	_, err := h.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId:     aws.String(event.SecretId),
		VersionId:    aws.String(event.ClientRequestToken),
		VersionStage: aws.String(stagePending),
	})
	if err == nil {
		logger.Info().Str("version_id", event.ClientRequestToken).Msg("Pending version already exists")
		return nil
	}
	if !isNotFound(err) {
		return fmt.Errorf("failed to check pending secret: %w", err)
	}

	newKey, err := generateAPIKey()
	if err != nil {
		return err
	}

	versions := rotate(ctx, h.currentVersions(ctx, event.SecretId), newKey, h.now())

	secretJSON, err := json.Marshal(versions)
	if err != nil {
		return fmt.Errorf("failed to marshal secret: %w", err)
	}

	logger.Info().Int("version_count", len(versions)).Msg("Creating secret with valid versions")

	_, err = h.client.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
		SecretId:           aws.String(event.SecretId),
		SecretString:       aws.String(string(secretJSON)),
		ClientRequestToken: aws.String(event.ClientRequestToken),
		VersionStages:      []string{stagePending},
	})
	if err != nil {
		return fmt.Errorf("failed to put secret value: %w", err)
	}

	return nil
}

// setSecret has nothing to do: the server reads the secret directly
func (h *Handler) setSecret(ctx context.Context, event RotationEvent) error {
	return nil
}

// testSecret verifies the pending secret parses and its newest version is usable
func (h *Handler) testSecret(ctx context.Context, event RotationEvent) error {
	output, err := h.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId:     aws.String(event.SecretId),
		VersionId:    aws.String(event.ClientRequestToken),
		VersionStage: aws.String(stagePending),
	})
	if err != nil {
		return fmt.Errorf("failed to get pending secret: %w", err)
	}

	if output.SecretString == nil {
		return fmt.Errorf("pending secret has no string value")
	}

	var versions []services.SecretVersion
	if err := json.Unmarshal([]byte(*output.SecretString), &versions); err != nil {
		return fmt.Errorf("pending secret is not valid JSON: %w", err)
	}

	if len(versions) == 0 {
		return fmt.Errorf("pending secret has no versions")
	}

	if len(services.ValidVersions(ctx, versions[:1])) != 1 {
		return fmt.Errorf("pending secret newest version is not a 256-bit base64 key")
	}

	return nil
}

// finishSecret moves AWSCURRENT to the pending version
func (h *Handler) finishSecret(ctx context.Context, event RotationEvent) error {
	logger := zerolog.Ctx(ctx)

	described, err := h.client.DescribeSecret(ctx, &secretsmanager.DescribeSecretInput{
		SecretId: aws.String(event.SecretId),
	})
	if err != nil {
		return fmt.Errorf("failed to describe secret: %w", err)
	}

	var currentVersion string
	for versionID, stages := range described.VersionIdsToStages {
		if slices.Contains(stages, stageCurrent) {
			currentVersion = versionID
			break
		}
	}

	if currentVersion == event.ClientRequestToken {
		logger.Info().Str("version_id", currentVersion).Msg("Version already marked AWSCURRENT")
		return nil
	}

	input := &secretsmanager.UpdateSecretVersionStageInput{
		SecretId:        aws.String(event.SecretId),
		VersionStage:    aws.String(stageCurrent),
		MoveToVersionId: aws.String(event.ClientRequestToken),
	}
	if currentVersion != "" {
		input.RemoveFromVersionId = aws.String(currentVersion)
	}

	if _, err := h.client.UpdateSecretVersionStage(ctx, input); err != nil {
		return fmt.Errorf("failed to update version stage: %w", err)
	}

	logger.Info().
		Str("version_id", event.ClientRequestToken).
		Str("previous_version_id", currentVersion).
		Msg("Rotation finished")

	return nil
}

func startLambda() error {
	logger := di.ProvideLogger().With().Str("lambda", "rotator").Logger()

	handler, _, err := newAWSHandler(logger.WithContext(context.Background()))
	if err != nil {
		return fmt.Errorf("failed to create handler: %w", err)
	}

	lambda.Start(func(ctx context.Context, event RotationEvent) error {
		ctx = logger.WithContext(ctx)
		return handler.HandleRotation(ctx, event)
	})
	return nil
}

func handleRotateCommand(c *cli.Context) error {
	logger := di.ProvideLogger().With().Str("lambda", "rotator").Logger()
	ctx := logger.WithContext(context.Background())

	handler, _, err := newAWSHandler(ctx)
	if err != nil {
		return fmt.Errorf("failed to create handler: %w", err)
	}

	secretID := c.String("secret-id")
	clientRequestToken := fmt.Sprintf("manual-%d", time.Now().Unix())

	for _, step := range []string{"createSecret", "setSecret", "testSecret", "finishSecret"} {
		event := RotationEvent{
			Step:               step,
			SecretId:           secretID,
			ClientRequestToken: clientRequestToken,
		}

		if err := handler.HandleRotation(ctx, event); err != nil {
			return fmt.Errorf("%s step failed: %w", step, err)
		}
	}

	fmt.Println("Rotation completed successfully")
	return nil
}

func handleCancelRotationCommand(c *cli.Context) error {
	ctx := context.Background()
	_, client, err := newAWSHandler(ctx)
	if err != nil {
		return fmt.Errorf("failed to create handler: %w", err)
	}

	secretID := c.String("secret-id")
	versionID := c.String("version-id")

	fmt.Printf("Cancelling pending rotation for secret: %s\n", secretID)

	_, err = client.UpdateSecretVersionStage(ctx, &secretsmanager.UpdateSecretVersionStageInput{
		SecretId:            aws.String(secretID),
		VersionStage:        aws.String(stagePending),
		RemoveFromVersionId: aws.String(versionID),
	})
	if err != nil {
		return fmt.Errorf("failed to remove AWSPENDING stage: %w", err)
	}

	fmt.Println("Successfully cancelled pending rotation")
	return nil
}

func main() {
	if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" {
		if err := startLambda(); err != nil {
			logger := di.ProvideLogger()
			logger.Fatal().Err(err).Msg("Failed to start rotator")
		}
		return
	}

	app := &cli.App{
		Name:           "rotator",
		Usage:          "Secrets Manager rotation function for secret-sync API keys",
		DefaultCommand: "rotate",
		Commands: []*cli.Command{
			{
				Name:  "rotate",
				Usage: "Manually trigger a rotation",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "secret-id",
						Usage:    "Secret ID to rotate",
						Required: true,
						EnvVars:  []string{"SECRET_ID"},
					},
				},
				Action: handleRotateCommand,
			},
			{
				Name:  "cancel-rotation",
				Usage: "Cancel a pending rotation",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "secret-id",
						Usage:    "Secret ID with pending rotation",
						Required: true,
						EnvVars:  []string{"SECRET_ID"},
					},
					&cli.StringFlag{
						Name:     "version-id",
						Usage:    "Version ID of the pending rotation to cancel",
						Required: true,
					},
				},
				Action: handleCancelRotationCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger := di.ProvideLogger()
		logger.Fatal().Err(err).Msg("Rotation failed")
	}
}
