package program

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// =========== Program Repository ===========

type programRepoPG struct{ pool *pgxpool.Pool }

func NewProgramRepoPG(pool *pgxpool.Pool) ProgramRepository { return &programRepoPG{pool: pool} }

const programCols = `id, uid, name, description, with_registration, created_at, updated_at`

func scanProgram(row pgx.Row) (*Program, error) {
	var p Program
	err := row.Scan(&p.ID, &p.UID, &p.Name, &p.Description, &p.WithRegistration, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *programRepoPG) Create(ctx context.Context, p *Program) error {
	p.ID = uuid.New()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO program (id, uid, name, description, with_registration)
		VALUES ($1,$2,$3,$4,$5)`,
		p.ID, p.UID, p.Name, p.Description, p.WithRegistration)
	return err
}

func (r *programRepoPG) GetByUID(ctx context.Context, uid string) (*Program, error) {
	return scanProgram(r.pool.QueryRow(ctx, `SELECT `+programCols+` FROM program WHERE uid = $1`, uid))
}

func (r *programRepoPG) List(ctx context.Context, limit, offset int) ([]*Program, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM program`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+programCols+` FROM program ORDER BY name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Program
	for rows.Next() {
		p, err := scanProgram(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

func (r *programRepoPG) Update(ctx context.Context, p *Program) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE program SET name=$2, description=$3, with_registration=$4, updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.Name, p.Description, p.WithRegistration)
	return err
}

func (r *programRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM program WHERE id = $1`, id)
	return err
}

func (r *programRepoPG) CreateStage(ctx context.Context, s *Stage) error {
	s.ID = uuid.New()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO program_stage (id, uid, program_uid, name, sort_order, repeatable, display_only)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		s.ID, s.UID, s.ProgramUID, s.Name, s.SortOrder, s.Repeatable, s.DisplayOnly)
	return err
}

func (r *programRepoPG) ListStages(ctx context.Context, programUID string) ([]*Stage, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, uid, program_uid, name, sort_order, repeatable, display_only, created_at, updated_at
		FROM program_stage WHERE program_uid = $1 ORDER BY sort_order`, programUID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Stage
	for rows.Next() {
		var s Stage
		if err := rows.Scan(&s.ID, &s.UID, &s.ProgramUID, &s.Name, &s.SortOrder,
			&s.Repeatable, &s.DisplayOnly, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

func (r *programRepoPG) AddStageElement(ctx context.Context, e *StageElement) error {
	e.ID = uuid.New()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO program_stage_data_element (id, stage_uid, data_element_uid, compulsory, sort_order)
		VALUES ($1,$2,$3,$4,$5)`,
		e.ID, e.StageUID, e.DataElementUID, e.Compulsory, e.SortOrder)
	return err
}

func (r *programRepoPG) ListStageElements(ctx context.Context, stageUID string) ([]*StageElement, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, stage_uid, data_element_uid, compulsory, sort_order
		FROM program_stage_data_element WHERE stage_uid = $1 ORDER BY sort_order`, stageUID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*StageElement
	for rows.Next() {
		var e StageElement
		if err := rows.Scan(&e.ID, &e.StageUID, &e.DataElementUID, &e.Compulsory, &e.SortOrder); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// =========== Element Repository ===========

type elementRepoPG struct{ pool *pgxpool.Pool }

func NewElementRepoPG(pool *pgxpool.Pool) ElementRepository { return &elementRepoPG{pool: pool} }

func (r *elementRepoPG) CreateDataElement(ctx context.Context, de *DataElement) error {
	de.ID = uuid.New()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO data_element (id, uid, name, value_type, option_set_uid)
		VALUES ($1,$2,$3,$4,$5)`,
		de.ID, de.UID, de.Name, de.ValueType, de.OptionSetUID)
	return err
}

func (r *elementRepoPG) ListDataElements(ctx context.Context, limit, offset int) ([]*DataElement, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM data_element`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, uid, name, value_type, option_set_uid, created_at, updated_at
		FROM data_element ORDER BY name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*DataElement
	for rows.Next() {
		var de DataElement
		if err := rows.Scan(&de.ID, &de.UID, &de.Name, &de.ValueType, &de.OptionSetUID,
			&de.CreatedAt, &de.UpdatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, &de)
	}
	return out, total, rows.Err()
}

func (r *elementRepoPG) CreateAttribute(ctx context.Context, a *Attribute) error {
	a.ID = uuid.New()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO tracked_entity_attribute (id, uid, name, value_type, option_set_uid)
		VALUES ($1,$2,$3,$4,$5)`,
		a.ID, a.UID, a.Name, a.ValueType, a.OptionSetUID)
	return err
}

func (r *elementRepoPG) ListAttributes(ctx context.Context) ([]*Attribute, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, uid, name, value_type, option_set_uid, created_at, updated_at
		FROM tracked_entity_attribute ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Attribute
	for rows.Next() {
		var a Attribute
		if err := rows.Scan(&a.ID, &a.UID, &a.Name, &a.ValueType, &a.OptionSetUID,
			&a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (r *elementRepoPG) CreateOptionSet(ctx context.Context, os *OptionSet) error {
	os.ID = uuid.New()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO option_set (id, uid, name) VALUES ($1,$2,$3)`,
		os.ID, os.UID, os.Name)
	return err
}

func (r *elementRepoPG) AddOption(ctx context.Context, o *Option) error {
	o.ID = uuid.New()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO option_item (id, option_set_uid, code, name, sort_order)
		VALUES ($1,$2,$3,$4,$5)`,
		o.ID, o.OptionSetUID, o.Code, o.Name, o.SortOrder)
	return err
}

func (r *elementRepoPG) ListOptions(ctx context.Context, optionSetUID string) ([]*Option, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, option_set_uid, code, name, sort_order
		FROM option_item WHERE option_set_uid = $1 ORDER BY sort_order`, optionSetUID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Option
	for rows.Next() {
		var o Option
		if err := rows.Scan(&o.ID, &o.OptionSetUID, &o.Code, &o.Name, &o.SortOrder); err != nil {
			return nil, err
		}
		out = append(out, &o)
	}
	return out, rows.Err()
}

func (r *elementRepoPG) CreateConstant(ctx context.Context, c *Constant) error {
	c.ID = uuid.New()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO constant (id, uid, name, value) VALUES ($1,$2,$3,$4)`,
		c.ID, c.UID, c.Name, c.Value)
	return err
}

func (r *elementRepoPG) ListConstants(ctx context.Context) ([]*Constant, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, uid, name, value FROM constant ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Constant
	for rows.Next() {
		var c Constant
		if err := rows.Scan(&c.ID, &c.UID, &c.Name, &c.Value); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// =========== Rule Repository ===========

type ruleRepoPG struct{ pool *pgxpool.Pool }

func NewRuleRepoPG(pool *pgxpool.Pool) RuleRepository { return &ruleRepoPG{pool: pool} }

const ruleCols = `id, uid, program_uid, stage_uid, name, condition, priority, created_at, updated_at`

func scanRule(row pgx.Row) (*Rule, error) {
	var r Rule
	err := row.Scan(&r.ID, &r.UID, &r.ProgramUID, &r.StageUID, &r.Name, &r.Condition,
		&r.Priority, &r.CreatedAt, &r.UpdatedAt)
	return &r, err
}

func (r *ruleRepoPG) CreateRule(ctx context.Context, rule *Rule) error {
	rule.ID = uuid.New()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO program_rule (id, uid, program_uid, stage_uid, name, condition, priority)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		rule.ID, rule.UID, rule.ProgramUID, rule.StageUID, rule.Name, rule.Condition, rule.Priority)
	return err
}

func (r *ruleRepoPG) GetRuleByUID(ctx context.Context, uid string) (*Rule, error) {
	return scanRule(r.pool.QueryRow(ctx, `SELECT `+ruleCols+` FROM program_rule WHERE uid = $1`, uid))
}

func (r *ruleRepoPG) ListRules(ctx context.Context, programUID string) ([]*Rule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+ruleCols+` FROM program_rule WHERE program_uid = $1 ORDER BY created_at`, programUID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

func (r *ruleRepoPG) UpdateRule(ctx context.Context, rule *Rule) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE program_rule SET stage_uid=$2, name=$3, condition=$4, priority=$5, updated_at=NOW()
		WHERE id = $1`,
		rule.ID, rule.StageUID, rule.Name, rule.Condition, rule.Priority)
	return err
}

func (r *ruleRepoPG) DeleteRule(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM program_rule WHERE id = $1`, id)
	return err
}

func (r *ruleRepoPG) AddAction(ctx context.Context, a *RuleAction) error {
	a.ID = uuid.New()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO program_rule_action
			(id, uid, rule_uid, action_type, location, data_element_uid, attribute_uid,
			 stage_uid, section_uid, content, data)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		a.ID, a.UID, a.RuleUID, a.ActionType, a.Location, a.DataElement, a.Attribute,
		a.StageUID, a.SectionUID, a.Content, a.Data)
	return err
}

func (r *ruleRepoPG) ListActions(ctx context.Context, ruleUID string) ([]*RuleAction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, uid, rule_uid, action_type, location, data_element_uid, attribute_uid,
		       stage_uid, section_uid, content, data
		FROM program_rule_action WHERE rule_uid = $1 ORDER BY uid`, ruleUID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*RuleAction
	for rows.Next() {
		var a RuleAction
		if err := rows.Scan(&a.ID, &a.UID, &a.RuleUID, &a.ActionType, &a.Location,
			&a.DataElement, &a.Attribute, &a.StageUID, &a.SectionUID, &a.Content, &a.Data); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (r *ruleRepoPG) CreateVariable(ctx context.Context, v *RuleVariable) error {
	v.ID = uuid.New()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO program_rule_variable
			(id, uid, program_uid, name, source_type, data_element_uid, attribute_uid,
			 stage_uid, use_code_for_option_set)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		v.ID, v.UID, v.ProgramUID, v.Name, v.SourceType, v.DataElement, v.Attribute,
		v.StageUID, v.UseCodeForOptionSet)
	return err
}

func (r *ruleRepoPG) ListVariables(ctx context.Context, programUID string) ([]*RuleVariable, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, uid, program_uid, name, source_type, data_element_uid, attribute_uid,
		       stage_uid, use_code_for_option_set
		FROM program_rule_variable WHERE program_uid = $1 ORDER BY name`, programUID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*RuleVariable
	for rows.Next() {
		var v RuleVariable
		if err := rows.Scan(&v.ID, &v.UID, &v.ProgramUID, &v.Name, &v.SourceType,
			&v.DataElement, &v.Attribute, &v.StageUID, &v.UseCodeForOptionSet); err != nil {
			return nil, err
		}
		out = append(out, &v)
	}
	return out, rows.Err()
}

func (r *ruleRepoPG) CreateIndicator(ctx context.Context, ind *Indicator) error {
	ind.ID = uuid.New()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO program_indicator (id, uid, program_uid, display_name, filter, expression)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		ind.ID, ind.UID, ind.ProgramUID, ind.DisplayName, ind.Filter, ind.Expression)
	return err
}

func (r *ruleRepoPG) ListIndicators(ctx context.Context, programUID string) ([]*Indicator, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, uid, program_uid, display_name, filter, expression
		FROM program_indicator WHERE program_uid = $1 ORDER BY display_name`, programUID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Indicator
	for rows.Next() {
		var ind Indicator
		if err := rows.Scan(&ind.ID, &ind.UID, &ind.ProgramUID, &ind.DisplayName,
			&ind.Filter, &ind.Expression); err != nil {
			return nil, err
		}
		out = append(out, &ind)
	}
	return out, rows.Err()
}
