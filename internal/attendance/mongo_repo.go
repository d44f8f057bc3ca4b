package attendance

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRepository keeps meetings, members and attendance as documents.
type MongoRepository struct {
	meetings   *mongo.Collection
	members    *mongo.Collection
	attendance *mongo.Collection
}

// NewMongoRepository uses the meetings, members and attendance collections of db.
func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{
		meetings:   db.Collection("meetings"),
		members:    db.Collection("members"),
		attendance: db.Collection("attendance"),
	}
}

type meetingDoc struct {
	ID          string     `bson:"_id"`
	Topic       string     `bson:"topic"`
	Description string     `bson:"description"`
	Date        time.Time  `bson:"date"`
	StartTime   string     `bson:"start_time"`
	EndTime     string     `bson:"end_time"`
	Location    string     `bson:"location"`
	GPSLink     string     `bson:"gps_link"`
	Duration    int        `bson:"qr_duration"`
	Status      string     `bson:"status"`
	Token       *string    `bson:"qr_token"`
	ExpiresAt   *time.Time `bson:"qr_expires_at"`
	Generation  int64      `bson:"qr_generation"`
	CreatedBy   string     `bson:"created_by"`
	CreatedAt   time.Time  `bson:"created_at"`
}

type memberDoc struct {
	UID             string   `bson:"_id"`
	MemberID        string   `bson:"member_id"`
	Name            string   `bson:"name"`
	Surname         string   `bson:"surname"`
	Role            string   `bson:"role"`
	Status          string   `bson:"status"`
	AttendanceCount int      `bson:"attendance_count"`
	CountedMeetings []string `bson:"counted_meetings,omitempty"`
}

type attendanceDoc struct {
	ID         string    `bson:"_id"`
	MeetingID  string    `bson:"meeting_id"`
	MemberUID  string    `bson:"member_uid"`
	MemberID   string    `bson:"member_id"`
	MemberName string    `bson:"member_name"`
	ScannedAt  time.Time `bson:"scanned_at"`
	Status     string    `bson:"status"`
}

// EnsureIndexes creates the unique (meeting_id, member_uid) index scans rely on.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.attendance.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "meeting_id", Value: 1}, {Key: "member_uid", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("attendance_meeting_member"),
		},
	})
	if err != nil {
		return err
	}
	_, err = r.meetings.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "status", Value: 1}},
		Options: options.Index().SetName("meetings_status"),
	})
	return err
}

// Ping verifies the server connection.
func (r *MongoRepository) Ping(ctx context.Context) error {
	return r.meetings.Database().Client().Ping(ctx, nil)
}

func (r *MongoRepository) GetMeetingSession(ctx context.Context, meetingID string) (Session, error) {
	var doc meetingDoc
	if err := r.meetings.FindOne(ctx, bson.M{"_id": meetingID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Session{}, ErrNotFound
		}
		return Session{}, err
	}
	return doc.session(), nil
}

func (r *MongoRepository) UpdateMeetingSession(ctx context.Context, meetingID string, upd SessionUpdate) (Session, error) {
	filter := bson.M{"_id": meetingID}
	if upd.IfGeneration != 0 {
		filter["qr_generation"] = upd.IfGeneration
	}

	var update bson.M
	if upd.Rotate {
		filter["status"] = string(StatusActive)
		update = bson.M{"$set": bson.M{"qr_token": upd.Token}}
	} else {
		set := bson.M{"status": string(upd.Status), "qr_token": nil, "qr_expires_at": nil}
		if upd.Status == StatusActive {
			set["qr_token"] = upd.Token
			if upd.ExpiresAt != nil {
				set["qr_expires_at"] = upd.ExpiresAt.UTC()
			}
		}
		if upd.DurationMinutes > 0 {
			set["qr_duration"] = upd.DurationMinutes
		}
		update = bson.M{"$set": set, "$inc": bson.M{"qr_generation": 1}}
	}

	var doc meetingDoc
	err := r.meetings.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&doc)
	if err != nil {
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return Session{}, err
		}
		n, cerr := r.meetings.CountDocuments(ctx, bson.M{"_id": meetingID})
		if cerr != nil {
			return Session{}, cerr
		}
		if n == 0 {
			return Session{}, ErrNotFound
		}
		return Session{}, ErrStaleGeneration
	}
	return doc.session(), nil
}

func (r *MongoRepository) ListActiveSessions(ctx context.Context) ([]Session, error) {
	cur, err := r.meetings.Find(ctx, bson.M{"status": string(StatusActive)})
	if err != nil {
		return nil, err
	}
	var docs []meetingDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]Session, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.session())
	}
	return out, nil
}

func (r *MongoRepository) FindAttendance(ctx context.Context, meetingID, memberUID string) (*Record, error) {
	var doc attendanceDoc
	err := r.attendance.FindOne(ctx, bson.M{"meeting_id": meetingID, "member_uid": memberUID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	rec := doc.record()
	return &rec, nil
}

func (r *MongoRepository) CreateAttendance(ctx context.Context, rec Record) error {
	_, err := r.attendance.InsertOne(ctx, attendanceDoc{
		ID:         rec.ID,
		MeetingID:  rec.MeetingID,
		MemberUID:  rec.MemberUID,
		MemberID:   rec.MemberID,
		MemberName: rec.MemberName,
		ScannedAt:  rec.ScannedAt,
		Status:     rec.Status,
	})
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	return err
}

// IncrementAttendanceCounter records the meeting in the member's
// counted_meetings set and bumps the counter in the same single-document
// update, so a repeated call changes nothing.
func (r *MongoRepository) IncrementAttendanceCounter(ctx context.Context, meetingID, memberUID string) error {
	rec, err := r.FindAttendance(ctx, meetingID, memberUID)
	if err != nil || rec == nil {
		return err
	}
	_, err = r.members.UpdateOne(ctx,
		bson.M{"_id": memberUID, "counted_meetings": bson.M{"$ne": meetingID}},
		bson.M{
			"$inc":      bson.M{"attendance_count": 1},
			"$addToSet": bson.M{"counted_meetings": meetingID},
		})
	return err
}

func (r *MongoRepository) GetMember(ctx context.Context, uid string) (Member, error) {
	var doc memberDoc
	if err := r.members.FindOne(ctx, bson.M{"_id": uid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Member{}, ErrNotFound
		}
		return Member{}, err
	}
	return Member{
		UID:             doc.UID,
		MemberID:        doc.MemberID,
		Name:            doc.Name,
		Surname:         doc.Surname,
		Role:            doc.Role,
		Status:          AccountStatus(doc.Status),
		AttendanceCount: doc.AttendanceCount,
	}, nil
}

func (r *MongoRepository) UpsertMember(ctx context.Context, m Member) error {
	if m.Status == "" {
		m.Status = AccountActive
	}
	if m.Role == "" {
		m.Role = "member"
	}
	_, err := r.members.UpdateOne(ctx,
		bson.M{"_id": m.UID},
		bson.M{
			"$set": bson.M{
				"member_id": m.MemberID,
				"name":      m.Name,
				"surname":   m.Surname,
				"role":      m.Role,
				"status":    string(m.Status),
			},
			"$setOnInsert": bson.M{"attendance_count": 0},
		},
		options.Update().SetUpsert(true))
	return err
}

func (r *MongoRepository) SetMemberStatus(ctx context.Context, uid string, status AccountStatus) error {
	res, err := r.members.UpdateOne(ctx, bson.M{"_id": uid}, bson.M{"$set": bson.M{"status": string(status)}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoRepository) CreateMeeting(ctx context.Context, m Meeting) (Meeting, error) {
	m = normalizeMeeting(m, time.Now())
	_, err := r.meetings.InsertOne(ctx, meetingDoc{
		ID:          m.ID,
		Topic:       m.Topic,
		Description: m.Description,
		Date:        m.Date,
		StartTime:   m.StartTime,
		EndTime:     m.EndTime,
		Location:    m.Location,
		GPSLink:     m.GPSLink,
		Duration:    m.DurationMinutes,
		Status:      string(m.Status),
		CreatedBy:   m.CreatedBy,
		CreatedAt:   m.CreatedAt,
	})
	if err != nil {
		return Meeting{}, err
	}
	return m, nil
}

func (r *MongoRepository) ListMeetings(ctx context.Context) ([]Meeting, error) {
	cur, err := r.meetings.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, err
	}
	var docs []meetingDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]Meeting, 0, len(docs))
	for _, d := range docs {
		out = append(out, Meeting{
			ID:              d.ID,
			Topic:           d.Topic,
			Description:     d.Description,
			Date:            d.Date,
			StartTime:       d.StartTime,
			EndTime:         d.EndTime,
			Location:        d.Location,
			GPSLink:         d.GPSLink,
			DurationMinutes: d.Duration,
			Status:          Status(d.Status),
			ExpiresAt:       d.ExpiresAt,
			CreatedBy:       d.CreatedBy,
			CreatedAt:       d.CreatedAt,
		})
	}
	return out, nil
}

func (r *MongoRepository) ListAttendance(ctx context.Context, meetingID string) ([]Record, error) {
	cur, err := r.attendance.Find(ctx, bson.M{"meeting_id": meetingID},
		options.Find().SetSort(bson.D{{Key: "scanned_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []attendanceDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.record())
	}
	return out, nil
}

func (d meetingDoc) session() Session {
	sess := Session{
		MeetingID:       d.ID,
		Status:          Status(d.Status),
		ExpiresAt:       d.ExpiresAt,
		DurationMinutes: d.Duration,
		Generation:      d.Generation,
	}
	if d.Token != nil {
		sess.Token = *d.Token
	}
	return sess
}

func (d attendanceDoc) record() Record {
	return Record{
		ID:         d.ID,
		MeetingID:  d.MeetingID,
		MemberUID:  d.MemberUID,
		MemberID:   d.MemberID,
		MemberName: d.MemberName,
		ScannedAt:  d.ScannedAt,
		Status:     d.Status,
	}
}

// AccountStatus reads the member's status straight from the members collection.
func (r *MongoRepository) AccountStatus(ctx context.Context, uid string) (AccountStatus, error) {
	m, err := r.GetMember(ctx, uid)
	if err != nil {
		return "", err
	}
	return m.Status, nil
}
