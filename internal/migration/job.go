// Package migration は旧SQLiteファイルからPostgreSQLへの一括移行ジョブを提供する。
//
// 移行先への書き込みは単一トランザクションで行い、途中で失敗した場合は何も残さない。
// 移行元には一切書き込まない。
package migration

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/audiencia/internal/legacy"
	"github.com/hitoshi/audiencia/internal/model"
	"github.com/hitoshi/audiencia/internal/repository"
)

// 移行処理のステップ名。MigrationError.Stepとログに使う。
const (
	StepBegin                      = "begin"
	StepReadRegistrations          = "read_registrations"
	StepWriteRegistrations         = "write_registrations"
	StepBackfillContentHashes      = "backfill_content_hashes"
	StepReadDetailedRegistrations  = "read_detailed_registrations"
	StepWriteDetailedRegistrations = "write_detailed_registrations"
	StepAdvanceSequence            = "advance_sequence"
	StepCommit                     = "commit"
)

// メトリクスのエンティティ名
const (
	entityRegistrations         = "registrations"
	entityDetailedRegistrations = "detailed_registrations"
)

// Source は移行元。legacy.Readerが実装する。
type Source interface {
	ReadRegistrations(ctx context.Context) ([]legacy.Registration, error)
	ReadDetailedRegistrations(ctx context.Context) ([]legacy.DetailedRegistration, error)
}

// Metrics は移行で記録するメトリクス。
type Metrics interface {
	RecordMigrationRows(entity, outcome string, count int)
}

// Options は移行ジョブの設定。
type Options struct {
	// Registrations は初回登録の書き込み方法。既定はInsertOrSkip。
	Registrations Strategy
	// Details は詳細登録の書き込み方法。既定はInsertAlways。
	Details Strategy
	// DryRun が真の場合、書き込みを行った後にロールバックして件数のみ報告する。
	DryRun bool
}

// DefaultOptions は既定の設定を返す。
func DefaultOptions() Options {
	return Options{
		Registrations: InsertOrSkip,
		Details:       InsertAlways,
	}
}

// EntityReport はエンティティごとの件数。
type EntityReport struct {
	Read     int
	Inserted int
	Skipped  int
}

// Report は移行ジョブの実行結果。
type Report struct {
	RunID                 string
	DryRun                bool
	Registrations         EntityReport
	DetailedRegistrations EntityReport
	// BackfilledHashes はcontent_hashを補完した既存の詳細登録の件数。
	BackfilledHashes int
	Duration         time.Duration
}

// MigrationError は移行の失敗をステップ名付きで表す。
type MigrationError struct {
	Step string
	Err  error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("移行処理(%s)に失敗しました: %v", e.Step, e.Err)
}

func (e *MigrationError) Unwrap() error {
	return e.Err
}

// Job は移行ジョブ。
type Job struct {
	source  Source
	target  repository.TxBeginner
	opts    Options
	metrics Metrics
	logger  *slog.Logger
}

// NewJob はJobの新しいインスタンスを生成する。
// 接続の所有権は呼び出し元にあり、Jobは閉じない。
func NewJob(source Source, target repository.TxBeginner, opts Options, metrics Metrics, logger *slog.Logger) *Job {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Job{
		source:  source,
		target:  target,
		opts:    opts,
		metrics: metrics,
		logger:  logger,
	}
}

// Run は移行を1回実行する。
// 初回登録、詳細登録、シーケンスの順に処理し、最後に一度だけコミットする。
func (j *Job) Run(ctx context.Context) (Report, error) {
	start := time.Now()
	report := Report{
		RunID:  uuid.NewString(),
		DryRun: j.opts.DryRun,
	}
	logger := j.logger.With(slog.String("run_id", report.RunID))

	logger.Info("legacy migration started",
		slog.String("registrations_strategy", j.opts.Registrations.String()),
		slog.String("details_strategy", j.opts.Details.String()),
		slog.Bool("dry_run", j.opts.DryRun),
	)

	fail := func(step string, err error) (Report, error) {
		report.Duration = time.Since(start)
		logger.Error("legacy migration failed",
			slog.String("step", step),
			slog.String("error", err.Error()),
		)
		return report, &MigrationError{Step: step, Err: err}
	}

	tx, err := j.target.BeginTx(ctx, nil)
	if err != nil {
		return fail(StepBegin, err)
	}
	defer tx.Rollback()

	regs, err := j.source.ReadRegistrations(ctx)
	if err != nil {
		return fail(StepReadRegistrations, err)
	}
	report.Registrations, err = j.writeRegistrations(ctx, tx, regs)
	if err != nil {
		return fail(StepWriteRegistrations, err)
	}
	logger.Info("registrations migrated",
		slog.Int("read", report.Registrations.Read),
		slog.Int("inserted", report.Registrations.Inserted),
		slog.Int("skipped", report.Registrations.Skipped),
	)

	// content_hash導入前の行は自然キーを持たないため、重複判定の前に補完する
	if j.opts.Details == InsertOrSkip {
		report.BackfilledHashes, err = backfillContentHashes(ctx, tx)
		if err != nil {
			return fail(StepBackfillContentHashes, err)
		}
		if report.BackfilledHashes > 0 {
			logger.Info("content hashes backfilled",
				slog.Int("rows", report.BackfilledHashes),
			)
		}
	}

	details, err := j.source.ReadDetailedRegistrations(ctx)
	if err != nil {
		return fail(StepReadDetailedRegistrations, err)
	}
	report.DetailedRegistrations, err = j.writeDetailedRegistrations(ctx, tx, details)
	if err != nil {
		return fail(StepWriteDetailedRegistrations, err)
	}
	logger.Info("detailed registrations migrated",
		slog.Int("read", report.DetailedRegistrations.Read),
		slog.Int("inserted", report.DetailedRegistrations.Inserted),
		slog.Int("skipped", report.DetailedRegistrations.Skipped),
	)

	if j.opts.DryRun {
		if err := tx.Rollback(); err != nil {
			return fail(StepCommit, err)
		}
		report.Duration = time.Since(start)
		logger.Info("legacy migration dry run finished, changes rolled back",
			slog.Duration("duration", report.Duration),
		)
		return report, nil
	}

	// setvalはロールバックされないため、ドライランでは実行しない
	if _, err := tx.ExecContext(ctx, advanceRegistrationSequenceSQL); err != nil {
		return fail(StepAdvanceSequence, err)
	}

	if err := tx.Commit(); err != nil {
		return fail(StepCommit, err)
	}
	report.Duration = time.Since(start)

	j.recordMetrics(entityRegistrations, report.Registrations)
	j.recordMetrics(entityDetailedRegistrations, report.DetailedRegistrations)

	logger.Info("legacy migration finished",
		slog.Duration("duration", report.Duration),
	)
	return report, nil
}

// writeRegistrations は初回登録を旧IDのまま書き込む。
func (j *Job) writeRegistrations(ctx context.Context, tx *sql.Tx, regs []legacy.Registration) (EntityReport, error) {
	er := EntityReport{Read: len(regs)}

	stmt, err := tx.PrepareContext(ctx, registrationSQL(j.opts.Registrations))
	if err != nil {
		return er, fmt.Errorf("初回登録の挿入文の準備に失敗しました: %w", err)
	}
	defer stmt.Close()

	for _, reg := range regs {
		res, err := stmt.ExecContext(ctx,
			reg.ID, reg.Name, reg.Email, reg.Phone, reg.Confirmed, reg.Timestamp,
		)
		if err != nil {
			return er, fmt.Errorf("初回登録(id=%d)の挿入に失敗しました: %w", reg.ID, err)
		}
		if inserted, err := affected(res); err != nil {
			return er, err
		} else if inserted {
			er.Inserted++
		} else {
			er.Skipped++
		}
	}

	return er, nil
}

// writeDetailedRegistrations は詳細登録を書き込む。IDは移行先で新たに採番する。
func (j *Job) writeDetailedRegistrations(ctx context.Context, tx *sql.Tx, details []legacy.DetailedRegistration) (EntityReport, error) {
	er := EntityReport{Read: len(details)}

	stmt, err := tx.PrepareContext(ctx, detailedSQL(j.opts.Details))
	if err != nil {
		return er, fmt.Errorf("詳細登録の挿入文の準備に失敗しました: %w", err)
	}
	defer stmt.Close()

	for i, d := range details {
		hash := model.DetailContentHash(d.NewDetailedRegistration)
		res, err := stmt.ExecContext(ctx,
			d.RegistrationEmail,
			d.CPF, d.Sexo, d.Participacao, d.InstituicaoNome, d.Cidade, d.AreaAtuacao,
			d.Setor, d.Cargo, d.InstitTel, d.InstitEmail, d.ConfirmacaoDetalhada,
			d.AceiteLGPD, d.AceiteComunicados, hash,
			d.Timestamp,
		)
		if err != nil {
			return er, fmt.Errorf("詳細登録(%d件目)の挿入に失敗しました: %w", i+1, err)
		}
		if inserted, err := affected(res); err != nil {
			return er, err
		} else if inserted {
			er.Inserted++
		} else {
			er.Skipped++
		}
	}

	return er, nil
}

// backfillContentHashes はcontent_hashがNULLの既存の詳細登録に自然キーを書き込む。
func backfillContentHashes(ctx context.Context, tx *sql.Tx) (int, error) {
	rows, err := tx.QueryContext(ctx, selectMissingContentHashSQL)
	if err != nil {
		return 0, fmt.Errorf("content_hash未設定の詳細登録の取得に失敗しました: %w", err)
	}

	type pending struct {
		id   int64
		hash string
	}
	var targets []pending
	for rows.Next() {
		var (
			id int64
			d  model.NewDetailedRegistration
		)
		if err := rows.Scan(
			&id, &d.RegistrationEmail,
			&d.CPF, &d.Sexo, &d.Participacao, &d.InstituicaoNome, &d.Cidade, &d.AreaAtuacao,
			&d.Setor, &d.Cargo, &d.InstitTel, &d.InstitEmail, &d.ConfirmacaoDetalhada,
			&d.AceiteLGPD, &d.AceiteComunicados,
		); err != nil {
			rows.Close()
			return 0, fmt.Errorf("詳細登録の読み取りに失敗しました: %w", err)
		}
		targets = append(targets, pending{id: id, hash: model.DetailContentHash(d)})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("詳細登録の読み取りに失敗しました: %w", err)
	}
	// 同じトランザクションで次の文を実行する前に結果セットを閉じる
	rows.Close()

	if len(targets) == 0 {
		return 0, nil
	}

	stmt, err := tx.PrepareContext(ctx, updateContentHashSQL)
	if err != nil {
		return 0, fmt.Errorf("content_hash更新文の準備に失敗しました: %w", err)
	}
	defer stmt.Close()

	for _, p := range targets {
		if _, err := stmt.ExecContext(ctx, p.hash, p.id); err != nil {
			return 0, fmt.Errorf("詳細登録(id=%d)のcontent_hash更新に失敗しました: %w", p.id, err)
		}
	}

	return len(targets), nil
}

func (j *Job) recordMetrics(entity string, er EntityReport) {
	j.metrics.RecordMigrationRows(entity, "read", er.Read)
	j.metrics.RecordMigrationRows(entity, "inserted", er.Inserted)
	j.metrics.RecordMigrationRows(entity, "skipped", er.Skipped)
}

// affected は1行挿入されたかどうかを返す。
func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("挿入件数の取得に失敗しました: %w", err)
	}
	return n > 0, nil
}

type noopMetrics struct{}

func (noopMetrics) RecordMigrationRows(string, string, int) {}
