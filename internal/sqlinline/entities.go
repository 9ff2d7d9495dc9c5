package sqlinline

const QInsertTrip = `--sql 9dc46ffb-d29f-485a-8d8b-2835f1b2801c
insert into trips (id, title, description, start_date, end_date, image_url, image_is_custom, image_prompt_id, image_pending, created_at, updated_at)
values ($1::text, $2::text, $3::text, $4::timestamptz, $5::timestamptz, $6::text, $7::boolean, $8::text, $9::boolean, $10::timestamptz, $10::timestamptz);
`

const QSelectTrip = `--sql 2e28279b-6637-42c3-a4be-cf8a3c8a6ac0
select id, title, description, start_date, end_date, image_url, image_is_custom, image_prompt_id, image_pending, created_at, updated_at
from trips
where id = $1::text;
`

const QUpdateTrip = `--sql fc2ba0c3-fd8a-47d6-95ac-7601c1220b8b
update trips
set title = $2::text,
    description = $3::text,
    start_date = $4::timestamptz,
    end_date = $5::timestamptz,
    updated_at = $6::timestamptz
where id = $1::text;
`

const QInsertSegment = `--sql 966a3451-6795-45d0-b2b9-cfd289f9d026
insert into segments (id, trip_id, name, segment_type, start_title, end_title, notes, start_time, end_time, sort_order,
    image_url, image_is_custom, image_prompt_id, image_pending, created_at, updated_at)
values ($1::text, $2::text, $3::text, $4::text, $5::text, $6::text, $7::text, $8::timestamptz, $9::timestamptz,
    coalesce($10::int, (select count(*) from segments where trip_id = $2::text)),
    $11::text, $12::boolean, $13::text, $14::boolean, $15::timestamptz, $15::timestamptz)
returning sort_order;
`

const QSelectSegment = `--sql bd2d4648-99e9-4cc4-a38c-2e5b8e9e1c50
select s.id, s.trip_id, s.name, s.segment_type, s.start_title, s.end_title, s.notes, s.start_time, s.end_time, s.sort_order,
    s.image_url, s.image_is_custom, s.image_prompt_id, s.image_pending, s.created_at, s.updated_at,
    t.title
from segments s
join trips t on t.id = s.trip_id
where s.id = $1::text;
`

const QUpdateSegment = `--sql f6013984-d6af-4373-8c3d-938471591aab
update segments
set name = $2::text,
    segment_type = $3::text,
    start_title = $4::text,
    end_title = $5::text,
    notes = $6::text,
    start_time = $7::timestamptz,
    end_time = $8::timestamptz,
    sort_order = $9::int,
    updated_at = $10::timestamptz
where id = $1::text;
`

const QInsertReservation = `--sql e6a7363d-7514-469b-b951-29f57b3c379d
insert into reservations (id, segment_id, name, category, reservation_type, location, notes, start_time, end_time,
    image_url, image_is_custom, image_prompt_id, image_pending, created_at, updated_at)
values ($1::text, $2::text, $3::text, $4::text, $5::text, $6::text, $7::text, $8::timestamptz, $9::timestamptz,
    $10::text, $11::boolean, $12::text, $13::boolean, $14::timestamptz, $14::timestamptz);
`

const QSelectReservation = `--sql 1bf38b3c-81da-430f-86c0-c8378c30dcb2
select r.id, r.segment_id, r.name, r.category, r.reservation_type, r.location, r.notes, r.start_time, r.end_time,
    r.image_url, r.image_is_custom, r.image_prompt_id, r.image_pending, r.created_at, r.updated_at,
    s.name, t.title
from reservations r
join segments s on s.id = r.segment_id
join trips t on t.id = s.trip_id
where r.id = $1::text;
`

const QUpdateReservation = `--sql 58795952-8f3f-48da-8098-4f4b3f66e3b3
update reservations
set name = $2::text,
    category = $3::text,
    reservation_type = $4::text,
    location = $5::text,
    notes = $6::text,
    start_time = $7::timestamptz,
    end_time = $8::timestamptz,
    updated_at = $9::timestamptz
where id = $1::text;
`

const QSetTripCustomImage = `--sql 1cac6cce-7bcf-4b9f-ab5c-9a35ed27e84a
update trips
set image_url = $2::text, image_is_custom = true, image_prompt_id = null, image_pending = false, updated_at = $3::timestamptz
where id = $1::text;
`

const QSetSegmentCustomImage = `--sql 5158ebfb-3377-4328-9324-3a1b416c1907
update segments
set image_url = $2::text, image_is_custom = true, image_prompt_id = null, image_pending = false, updated_at = $3::timestamptz
where id = $1::text;
`

const QSetReservationCustomImage = `--sql 5f76149a-fd27-4b40-aff6-1b02884ff666
update reservations
set image_url = $2::text, image_is_custom = true, image_prompt_id = null, image_pending = false, updated_at = $3::timestamptz
where id = $1::text;
`

const QClearTripCustomImage = `--sql 4f33ad52-7a7e-4df0-a2ff-4efdb1c6cbbc
update trips set image_is_custom = false, updated_at = $2::timestamptz where id = $1::text;
`

const QClearSegmentCustomImage = `--sql abac86fe-b432-4a2b-a0b4-49c21be3784d
update segments set image_is_custom = false, updated_at = $2::timestamptz where id = $1::text;
`

const QClearReservationCustomImage = `--sql 35e49849-1243-4e0a-8b32-e9aa440292d3
update reservations set image_is_custom = false, updated_at = $2::timestamptz where id = $1::text;
`
