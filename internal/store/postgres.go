package store

import (
    "context"
    "database/sql"
    "encoding/json"
    "errors"
    "os"
    "path/filepath"
    "sort"
    "strings"
    "time"

    "github.com/google/uuid"
    _ "github.com/jackc/pgx/v5/stdlib"

    "shipflow/internal/model"
)

type Postgres struct {
    db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
    db, err := sql.Open("pgx", dsn)
    if err != nil { return nil, err }
    if err := db.Ping(); err != nil { return nil, err }
    return &Postgres{db: db}, nil
}

// Ping verifies database connectivity. Used by the readiness probe.
func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// MigrateDir applies *.sql files in lexical order. Dev helper; real
// deployments run migrations out of band.
func (p *Postgres) MigrateDir(dir string) error {
    entries, err := os.ReadDir(dir)
    if err != nil { return err }
    names := []string{}
    for _, e := range entries {
        if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") { names = append(names, e.Name()) }
    }
    sort.Strings(names)
    for _, n := range names {
        b, err := os.ReadFile(filepath.Join(dir, n))
        if err != nil { return err }
        if _, err := p.db.Exec(string(b)); err != nil { return err }
    }
    return nil
}

func (p *Postgres) CreateOrder(ctx context.Context, o model.Order) error {
    if o.ID == "" { o.ID = uuid.New().String() }
    if o.Status == "" { o.Status = model.OrderCreated }
    _, err := p.db.ExecContext(ctx, `INSERT INTO orders (id, tenant_id, priority, status, warehouse_id, carrier_id, shipping_address, items, notes)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
        o.ID, o.TenantID, o.Priority, o.Status, nullIfEmpty(o.WarehouseID), nullIfEmpty(o.CarrierID), mustJSON(o.ShippingAddress), mustJSON(o.Items), nullIfEmpty(o.Notes))
    return err
}

func (p *Postgres) GetOrder(ctx context.Context, tenantID, orderID string) (model.Order, error) {
    var o model.Order
    var addr, items []byte
    var wh, car, notes sql.NullString
    row := p.db.QueryRowContext(ctx, `SELECT id::text, priority, status, warehouse_id::text, carrier_id::text, shipping_address, items, notes
        FROM orders WHERE tenant_id=$1 AND id=$2`, tenantID, orderID)
    if err := row.Scan(&o.ID, &o.Priority, &o.Status, &wh, &car, &addr, &items, &notes); err != nil {
        if errors.Is(err, sql.ErrNoRows) { return o, ErrNotFound }
        return o, err
    }
    o.TenantID = tenantID
    o.WarehouseID = wh.String
    o.CarrierID = car.String
    o.Notes = notes.String
    _ = json.Unmarshal(addr, &o.ShippingAddress)
    _ = json.Unmarshal(items, &o.Items)
    return o, nil
}

func (p *Postgres) SetOrderStatus(ctx context.Context, tenantID, orderID string, status model.OrderStatus, note string) error {
    res, err := p.db.ExecContext(ctx, `UPDATE orders SET status=$1, notes=CASE WHEN $2='' THEN notes ELSE COALESCE(notes||E'\n','')||$2 END
        WHERE tenant_id=$3 AND id=$4`, status, note, tenantID, orderID)
    if err != nil { return err }
    if n, _ := res.RowsAffected(); n == 0 { return ErrNotFound }
    return nil
}

func (p *Postgres) GetWarehouse(ctx context.Context, tenantID, id string) (model.Warehouse, error) {
    var w model.Warehouse
    var addr []byte
    row := p.db.QueryRowContext(ctx, `SELECT id::text, code, name, address FROM warehouses WHERE tenant_id=$1 AND id=$2`, tenantID, id)
    if err := row.Scan(&w.ID, &w.Code, &w.Name, &addr); err != nil {
        if errors.Is(err, sql.ErrNoRows) { return w, ErrNotFound }
        return w, err
    }
    _ = json.Unmarshal(addr, &w.Address)
    return w, nil
}

func (p *Postgres) UpsertWarehouse(ctx context.Context, tenantID string, w model.Warehouse) error {
    if w.ID == "" { w.ID = uuid.New().String() }
    _, err := p.db.ExecContext(ctx, `INSERT INTO warehouses (id, tenant_id, code, name, address) VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (id) DO UPDATE SET code=$3, name=$4, address=$5`, w.ID, tenantID, w.Code, w.Name, mustJSON(w.Address))
    return err
}

func (p *Postgres) ListCarriers(ctx context.Context, tenantID string) ([]model.Carrier, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, code, name, service_type, is_active, availability_status, reliability_score, COALESCE(api_endpoint,''), COALESCE(secret,''), available_since
        FROM carriers WHERE tenant_id=$1 ORDER BY reliability_score DESC`, tenantID)
    if err != nil { return nil, err }
    defer rows.Close()
    return scanCarriers(rows, tenantID)
}

func (p *Postgres) UpsertCarrier(ctx context.Context, c model.Carrier) error {
    if c.ID == "" { c.ID = uuid.New().String() }
    _, err := p.db.ExecContext(ctx, `INSERT INTO carriers (id, tenant_id, code, name, service_type, is_active, availability_status, reliability_score, api_endpoint, secret, available_since)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        ON CONFLICT (tenant_id, code) DO UPDATE SET name=$4, service_type=$5, is_active=$6, availability_status=$7, reliability_score=$8, api_endpoint=$9, secret=$10`,
        c.ID, c.TenantID, c.Code, c.Name, c.ServiceType, c.IsActive, c.Availability, c.ReliabilityScore, nullIfEmpty(c.Endpoint), nullIfEmpty(c.Secret), c.AvailableSince)
    return err
}

func (p *Postgres) EligibleCarriers(ctx context.Context, tenantID string, serviceType model.ServiceType, exclude []string, limit int) ([]model.Carrier, error) {
    if limit <= 0 { limit = 3 }
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, code, name, service_type, is_active, availability_status, reliability_score, COALESCE(api_endpoint,''), COALESCE(secret,''), available_since
        FROM carriers
        WHERE tenant_id=$1 AND is_active=true AND availability_status='available'
          AND (service_type=$2 OR service_type='all')
          AND NOT (id::text = ANY($3))
        ORDER BY reliability_score DESC, id LIMIT $4`, tenantID, serviceType, pqStringArray(exclude), limit)
    if err != nil { return nil, err }
    defer rows.Close()
    return scanCarriers(rows, tenantID)
}

func (p *Postgres) SetCarrierAvailability(ctx context.Context, tenantID, code string, st model.CarrierAvailability, at time.Time) (model.Carrier, error) {
    var avail any
    if st == model.CarrierAvailable { avail = at } else { avail = nil }
    var id string
    err := p.db.QueryRowContext(ctx, `UPDATE carriers SET availability_status=$1, available_since=COALESCE($2, available_since)
        WHERE tenant_id=$3 AND code=$4 RETURNING id::text`, st, avail, tenantID, code).Scan(&id)
    if errors.Is(err, sql.ErrNoRows) { return model.Carrier{}, ErrNotFound }
    if err != nil { return model.Carrier{}, err }
    return p.getCarrier(ctx, tenantID, id)
}

func (p *Postgres) getCarrier(ctx context.Context, tenantID, id string) (model.Carrier, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, code, name, service_type, is_active, availability_status, reliability_score, COALESCE(api_endpoint,''), COALESCE(secret,''), available_since
        FROM carriers WHERE tenant_id=$1 AND id=$2`, tenantID, id)
    if err != nil { return model.Carrier{}, err }
    defer rows.Close()
    cs, err := scanCarriers(rows, tenantID)
    if err != nil { return model.Carrier{}, err }
    if len(cs) == 0 { return model.Carrier{}, ErrNotFound }
    return cs[0], nil
}

func (p *Postgres) CarriersAvailableSince(ctx context.Context, since time.Time) ([]model.Carrier, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, code, name, service_type, is_active, availability_status, reliability_score, COALESCE(api_endpoint,''), COALESCE(secret,''), available_since, tenant_id::text
        FROM carriers WHERE availability_status='available' AND available_since > $1`, since)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Carrier{}
    for rows.Next() {
        var c model.Carrier
        var since sql.NullTime
        if err := rows.Scan(&c.ID, &c.Code, &c.Name, &c.ServiceType, &c.IsActive, &c.Availability, &c.ReliabilityScore, &c.Endpoint, &c.Secret, &since, &c.TenantID); err != nil { return nil, err }
        if since.Valid { t := since.Time; c.AvailableSince = &t }
        out = append(out, c)
    }
    return out, rows.Err()
}

func scanCarriers(rows *sql.Rows, tenantID string) ([]model.Carrier, error) {
    out := []model.Carrier{}
    for rows.Next() {
        var c model.Carrier
        var since sql.NullTime
        if err := rows.Scan(&c.ID, &c.Code, &c.Name, &c.ServiceType, &c.IsActive, &c.Availability, &c.ReliabilityScore, &c.Endpoint, &c.Secret, &since); err != nil { return nil, err }
        c.TenantID = tenantID
        if since.Valid { t := since.Time; c.AvailableSince = &t }
        out = append(out, c)
    }
    return out, rows.Err()
}

func (p *Postgres) CreateAssignmentBatch(ctx context.Context, tenantID, orderID string, assignments []model.CarrierAssignment, orderStatus model.OrderStatus) error {
    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return err }
    defer func(){ _ = tx.Rollback() }()
    for _, a := range assignments {
        _, err = tx.ExecContext(ctx, `INSERT INTO carrier_assignments
            (id, tenant_id, order_id, carrier_id, carrier_name, service_type, status, pickup, delivery, request_payload, idempotency_key, expires_at, created_at)
            VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
            a.ID, tenantID, orderID, a.CarrierID, a.CarrierName, a.ServiceType, a.Status, mustJSON(a.Pickup), mustJSON(a.Delivery), []byte(a.RequestPayload), a.IdempotencyKey, a.ExpiresAt, a.CreatedAt)
        if err != nil { return err }
    }
    res, err := tx.ExecContext(ctx, `UPDATE orders SET status=$1 WHERE tenant_id=$2 AND id=$3`, orderStatus, tenantID, orderID)
    if err != nil { return err }
    if n, _ := res.RowsAffected(); n == 0 { return ErrNotFound }
    return tx.Commit()
}

const assignmentCols = `a.id::text, a.tenant_id::text, a.order_id::text, a.carrier_id::text, COALESCE(a.carrier_name,''), a.service_type, a.status,
    a.pickup, a.delivery, a.request_payload, a.acceptance_payload, COALESCE(a.reject_reason,''), a.idempotency_key, a.expires_at, a.created_at, a.updated_at`

func scanAssignment(row interface{ Scan(...any) error }) (model.CarrierAssignment, error) {
    var a model.CarrierAssignment
    var pickup, delivery, reqPayload, accPayload []byte
    var updated sql.NullTime
    err := row.Scan(&a.ID, &a.TenantID, &a.OrderID, &a.CarrierID, &a.CarrierName, &a.ServiceType, &a.Status,
        &pickup, &delivery, &reqPayload, &accPayload, &a.RejectReason, &a.IdempotencyKey, &a.ExpiresAt, &a.CreatedAt, &updated)
    if err != nil { return a, err }
    _ = json.Unmarshal(pickup, &a.Pickup)
    _ = json.Unmarshal(delivery, &a.Delivery)
    a.RequestPayload = reqPayload
    a.AcceptancePayload = accPayload
    if updated.Valid { a.UpdatedAt = updated.Time }
    return a, nil
}

func (p *Postgres) GetAssignment(ctx context.Context, tenantID, id string) (model.CarrierAssignment, error) {
    row := p.db.QueryRowContext(ctx, `SELECT `+assignmentCols+` FROM carrier_assignments a WHERE a.tenant_id=$1 AND a.id=$2`, tenantID, id)
    a, err := scanAssignment(row)
    if errors.Is(err, sql.ErrNoRows) { return a, ErrNotFound }
    return a, err
}

func (p *Postgres) DistinctCarriersTried(ctx context.Context, tenantID, orderID string) (int, []string, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT DISTINCT carrier_id::text FROM carrier_assignments WHERE tenant_id=$1 AND order_id=$2`, tenantID, orderID)
    if err != nil { return 0, nil, err }
    defer rows.Close()
    ids := []string{}
    for rows.Next() {
        var id string
        if err := rows.Scan(&id); err != nil { return 0, nil, err }
        ids = append(ids, id)
    }
    return len(ids), ids, rows.Err()
}

// TransitionAssignment relies on a conditional UPDATE: concurrent
// movers race on WHERE status=from and exactly one wins.
func (p *Postgres) TransitionAssignment(ctx context.Context, tenantID, id string, from, to model.AssignmentStatus, upd AssignmentUpdate) (model.CarrierAssignment, error) {
    if !from.CanTransition(to) { return model.CarrierAssignment{}, ErrStatusConflict }
    res, err := p.db.ExecContext(ctx, `UPDATE carrier_assignments SET status=$1, reject_reason=COALESCE(NULLIF($2,''), reject_reason), expires_at=COALESCE($3, expires_at), updated_at=now()
        WHERE tenant_id=$4 AND id=$5 AND status=$6`, to, upd.RejectReason, upd.ExpiresAt, tenantID, id, from)
    if err != nil { return model.CarrierAssignment{}, err }
    if n, _ := res.RowsAffected(); n == 0 {
        // Distinguish a missing row from a lost race.
        if _, gerr := p.GetAssignment(ctx, tenantID, id); gerr != nil { return model.CarrierAssignment{}, gerr }
        return model.CarrierAssignment{}, ErrStatusConflict
    }
    return p.GetAssignment(ctx, tenantID, id)
}

func (p *Postgres) AcceptAssignment(ctx context.Context, tenantID, assignmentID, carrierID string, acceptance []byte, shipment model.Shipment) (model.CarrierAssignment, model.Shipment, error) {
    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return model.CarrierAssignment{}, model.Shipment{}, err }
    defer func(){ _ = tx.Rollback() }()

    var ownerID, orderID string
    var status model.AssignmentStatus
    err = tx.QueryRowContext(ctx, `SELECT carrier_id::text, order_id::text, status FROM carrier_assignments WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, assignmentID).
        Scan(&ownerID, &orderID, &status)
    if errors.Is(err, sql.ErrNoRows) { return model.CarrierAssignment{}, model.Shipment{}, ErrNotFound }
    if err != nil { return model.CarrierAssignment{}, model.Shipment{}, err }
    if ownerID != carrierID {
        var ownerName string
        _ = tx.QueryRowContext(ctx, `SELECT name FROM carriers WHERE tenant_id=$1 AND id=$2`, tenantID, ownerID).Scan(&ownerName)
        return model.CarrierAssignment{}, model.Shipment{}, &OwnershipError{AssignmentID: assignmentID, OwnerID: ownerID, OwnerName: ownerName}
    }
    if status != model.AssignmentPending {
        return model.CarrierAssignment{}, model.Shipment{}, ErrAlreadyDecided
    }

    _, err = tx.ExecContext(ctx, `UPDATE carrier_assignments SET status='accepted', acceptance_payload=$1, updated_at=now() WHERE tenant_id=$2 AND id=$3`,
        acceptance, tenantID, assignmentID)
    if err != nil { return model.CarrierAssignment{}, model.Shipment{}, err }

    if shipment.ID == "" { shipment.ID = uuid.New().String() }
    // Unique (tenant_id, order_id) keeps the shipment 1:1 with orders
    // even if two accepts ever slip through.
    _, err = tx.ExecContext(ctx, `INSERT INTO shipments (id, tenant_id, order_id, assignment_id, carrier_id, tracking_number, item_type, total_weight_kg, fragile, hazardous, perishable, cold_storage, status)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
        ON CONFLICT (tenant_id, order_id) DO NOTHING`,
        shipment.ID, tenantID, orderID, assignmentID, carrierID, shipment.TrackingNumber, shipment.ItemType, shipment.TotalWeightKg,
        shipment.Fragile, shipment.Hazardous, shipment.Perishable, shipment.ColdStorage, shipment.Status)
    if err != nil { return model.CarrierAssignment{}, model.Shipment{}, err }

    _, err = tx.ExecContext(ctx, `UPDATE orders SET status=$1, carrier_id=$2 WHERE tenant_id=$3 AND id=$4`, model.OrderReadyToShip, carrierID, tenantID, orderID)
    if err != nil { return model.CarrierAssignment{}, model.Shipment{}, err }
    if err := tx.Commit(); err != nil { return model.CarrierAssignment{}, model.Shipment{}, err }

    a, err := p.GetAssignment(ctx, tenantID, assignmentID)
    if err != nil { return a, model.Shipment{}, err }
    s, err := p.GetShipmentByOrder(ctx, tenantID, orderID)
    return a, s, err
}

func (p *Postgres) PendingAssignmentsForCarrier(ctx context.Context, tenantID, carrierID string) ([]model.CarrierAssignment, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT `+assignmentCols+` FROM carrier_assignments a
        WHERE a.tenant_id=$1 AND a.carrier_id=$2 AND a.status='pending' ORDER BY a.created_at`, tenantID, carrierID)
    if err != nil { return nil, err }
    defer rows.Close()
    return collectAssignments(rows)
}

func (p *Postgres) ExpiredPendingAssignments(ctx context.Context, now time.Time, limit int) ([]model.CarrierAssignment, error) {
    if limit <= 0 { limit = 100 }
    rows, err := p.db.QueryContext(ctx, `SELECT `+assignmentCols+` FROM carrier_assignments a
        JOIN orders o ON o.tenant_id=a.tenant_id AND o.id=a.order_id
        WHERE a.status='pending' AND a.expires_at < $1 AND o.status NOT IN ('shipped','delivered','cancelled')
        ORDER BY a.expires_at LIMIT $2`, now, limit)
    if err != nil { return nil, err }
    defer rows.Close()
    return collectAssignments(rows)
}

func (p *Postgres) BusyAssignmentsForCarrier(ctx context.Context, carrierID string, limit int) ([]model.CarrierAssignment, error) {
    if limit <= 0 { limit = 5 }
    rows, err := p.db.QueryContext(ctx, `SELECT `+assignmentCols+` FROM carrier_assignments a
        JOIN orders o ON o.tenant_id=a.tenant_id AND o.id=a.order_id
        WHERE a.carrier_id=$1 AND a.status='busy' AND o.status NOT IN ('shipped','delivered','cancelled')
        ORDER BY a.created_at LIMIT $2`, carrierID, limit)
    if err != nil { return nil, err }
    defer rows.Close()
    return collectAssignments(rows)
}

func (p *Postgres) OrdersAwaitingRetry(ctx context.Context, limit int) ([]OrderRef, error) {
    if limit <= 0 { limit = 50 }
    rows, err := p.db.QueryContext(ctx, `SELECT a.tenant_id::text, a.order_id::text FROM carrier_assignments a
        JOIN orders o ON o.tenant_id=a.tenant_id AND o.id=a.order_id
        WHERE o.status NOT IN ('shipped','delivered','cancelled','on_hold')
        GROUP BY a.tenant_id, a.order_id
        HAVING COUNT(*) FILTER (WHERE a.status IN ('pending','accepted')) = 0
           AND COUNT(*) FILTER (WHERE a.status IN ('rejected','expired','busy')) > 0
        LIMIT $1`, limit)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []OrderRef{}
    for rows.Next() {
        var r OrderRef
        if err := rows.Scan(&r.TenantID, &r.OrderID); err != nil { return nil, err }
        out = append(out, r)
    }
    return out, rows.Err()
}

func collectAssignments(rows *sql.Rows) ([]model.CarrierAssignment, error) {
    out := []model.CarrierAssignment{}
    for rows.Next() {
        a, err := scanAssignment(rows)
        if err != nil { return nil, err }
        out = append(out, a)
    }
    return out, rows.Err()
}

func (p *Postgres) GetShipmentByOrder(ctx context.Context, tenantID, orderID string) (model.Shipment, error) {
    var s model.Shipment
    row := p.db.QueryRowContext(ctx, `SELECT id::text, order_id::text, assignment_id::text, carrier_id::text, tracking_number, item_type, total_weight_kg, fragile, hazardous, perishable, cold_storage, status
        FROM shipments WHERE tenant_id=$1 AND order_id=$2`, tenantID, orderID)
    err := row.Scan(&s.ID, &s.OrderID, &s.AssignmentID, &s.CarrierID, &s.TrackingNumber, &s.ItemType, &s.TotalWeightKg, &s.Fragile, &s.Hazardous, &s.Perishable, &s.ColdStorage, &s.Status)
    if errors.Is(err, sql.ErrNoRows) { return s, ErrNotFound }
    s.TenantID = tenantID
    return s, err
}

func (p *Postgres) EnqueueNotification(ctx context.Context, n CarrierNotification) (string, error) {
    if n.ID == "" { n.ID = uuid.New().String() }
    _, err := p.db.ExecContext(ctx, `INSERT INTO carrier_notifications (id, tenant_id, carrier_id, assignment_id, event_type, url, secret, payload, status, attempts, next_attempt_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,'pending',0,now())
        ON CONFLICT (assignment_id, event_type) DO NOTHING`,
        n.ID, n.TenantID, n.CarrierID, nullIfEmpty(n.AssignmentID), n.EventType, n.URL, nullIfEmpty(n.Secret), n.Payload)
    if err != nil { return "", err }
    return n.ID, nil
}

func (p *Postgres) FetchDueNotifications(ctx context.Context, limit int) ([]CarrierNotification, error) {
    if limit <= 0 { limit = 50 }
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, tenant_id::text, carrier_id::text, COALESCE(assignment_id::text,''), event_type, url, COALESCE(secret,''), payload, status, attempts
        FROM carrier_notifications WHERE status IN ('pending','retry') AND next_attempt_at <= now() ORDER BY next_attempt_at LIMIT $1`, limit)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []CarrierNotification{}
    for rows.Next() {
        var n CarrierNotification
        if err := rows.Scan(&n.ID, &n.TenantID, &n.CarrierID, &n.AssignmentID, &n.EventType, &n.URL, &n.Secret, &n.Payload, &n.Status, &n.Attempts); err != nil { return nil, err }
        out = append(out, n)
    }
    return out, rows.Err()
}

func (p *Postgres) MarkNotification(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode, latencyMs int) error {
    if success {
        _, err := p.db.ExecContext(ctx, `UPDATE carrier_notifications SET status='delivered', attempts=attempts+1, delivered_at=now(), last_error=NULL, response_code=$1, latency_ms=$2 WHERE id=$3`,
            responseCode, latencyMs, id)
        return err
    }
    _, err := p.db.ExecContext(ctx, `UPDATE carrier_notifications SET status='retry', attempts=attempts+1, next_attempt_at=COALESCE($1, next_attempt_at), last_error=NULLIF($2,''), response_code=$3, latency_ms=$4 WHERE id=$5`,
        nextAttemptAt, lastError, responseCode, latencyMs, id)
    return err
}

func (p *Postgres) FailNotification(ctx context.Context, id, lastError string, responseCode, latencyMs int) error {
    _, err := p.db.ExecContext(ctx, `UPDATE carrier_notifications SET status='failed', attempts=attempts+1, last_error=NULLIF($1,''), response_code=$2, latency_ms=$3 WHERE id=$4`,
        lastError, responseCode, latencyMs, id)
    return err
}

func (p *Postgres) SaveQuoteRun(ctx context.Context, tenantID, orderID string, quotes []model.Quote) error {
    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return err }
    defer func(){ _ = tx.Rollback() }()
    for _, q := range quotes {
        _, err = tx.ExecContext(ctx, `INSERT INTO quotes (id, tenant_id, order_id, carrier_id, price, currency, estimated_days, accepted, timed_out, reason, was_retried, latency_ms, selected, selection_reason, created_at)
            VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,now())`,
            uuid.New().String(), tenantID, orderID, q.CarrierID, q.Price, nullIfEmpty(q.Currency), q.EstimatedDays, q.Accepted, q.TimedOut, nullIfEmpty(q.Reason), q.WasRetried, q.LatencyMs, q.Selected, nullIfEmpty(q.SelectionReason))
        if err != nil { return err }
    }
    return tx.Commit()
}

func (p *Postgres) ListQuoteRuns(ctx context.Context, tenantID, orderID string) ([]model.Quote, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT carrier_id::text, price, COALESCE(currency,''), estimated_days, accepted, timed_out, COALESCE(reason,''), was_retried, latency_ms, selected, COALESCE(selection_reason,'')
        FROM quotes WHERE tenant_id=$1 AND order_id=$2 ORDER BY created_at`, tenantID, orderID)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Quote{}
    for rows.Next() {
        var q model.Quote
        if err := rows.Scan(&q.CarrierID, &q.Price, &q.Currency, &q.EstimatedDays, &q.Accepted, &q.TimedOut, &q.Reason, &q.WasRetried, &q.LatencyMs, &q.Selected, &q.SelectionReason); err != nil { return nil, err }
        out = append(out, q)
    }
    return out, rows.Err()
}

func nullIfEmpty(s string) any { if s == "" { return nil }; return s }

func mustJSON(v any) []byte {
    b, err := json.Marshal(v)
    if err != nil { return []byte("null") }
    return b
}

// pqStringArray passes a text[] parameter; empty input becomes an
// empty array so ANY() comparisons stay valid.
func pqStringArray(v []string) any {
    if len(v) == 0 { return "{}" }
    escaped := make([]string, len(v))
    for i, s := range v {
        escaped[i] = `"` + strings.ReplaceAll(strings.ReplaceAll(s, `\`, `\\`), `"`, `\"`) + `"`
    }
    return "{" + strings.Join(escaped, ",") + "}"
}
