package sqlinline

// Column order shared by every statement returning an image job row.
// id, entity_type, entity_id, prompt_id, full_prompt, status, attempts,
// image_url, notes, run_after, claimed_by, claimed_at, created_at, updated_at

const QInsertImageJob = `--sql 50ba83c2-c1c1-4bb6-a24c-b9f55e6d8997
with inserted as (
    insert into image_jobs (id, entity_type, entity_id, prompt_id, full_prompt, status, attempts, run_after, created_at, updated_at)
    select $1::text, $2::text, $3::text, $4::text, $5::text, 'pending', 0, $6::timestamptz, $6::timestamptz, $6::timestamptz
    where not exists (
        select 1
        from image_jobs
        where entity_type = $2::text
          and entity_id = $3::text
          and status = 'in_progress'
    )
    returning id, entity_type, entity_id
),
trip_mark as (
    update trips t set image_pending = true, updated_at = $6::timestamptz
    from inserted i
    where i.entity_type = 'trip' and t.id = i.entity_id and t.image_is_custom = false
    returning t.id
),
segment_mark as (
    update segments s set image_pending = true, updated_at = $6::timestamptz
    from inserted i
    where i.entity_type = 'segment' and s.id = i.entity_id and s.image_is_custom = false
    returning s.id
),
reservation_mark as (
    update reservations r set image_pending = true, updated_at = $6::timestamptz
    from inserted i
    where i.entity_type = 'reservation' and r.id = i.entity_id and r.image_is_custom = false
    returning r.id
)
select id from inserted;
`

const QClaimNextImageJob = `--sql c5440c5b-0cf8-481f-95a2-0230a32ba04f
with next_job as (
    select j.id
    from image_jobs j
    where j.status = 'pending'
      and j.run_after <= $2::timestamptz
      and not exists (
          select 1
          from image_jobs r
          where r.entity_type = j.entity_type
            and r.entity_id = j.entity_id
            and r.status = 'in_progress'
      )
    order by j.created_at asc, j.id asc
    for update skip locked
    limit 1
)
update image_jobs j
set status = 'in_progress',
    attempts = j.attempts + 1,
    claimed_by = $1::text,
    claimed_at = $2::timestamptz,
    updated_at = $2::timestamptz
from next_job
where j.id = next_job.id
  and j.status = 'pending'
returning j.id, j.entity_type, j.entity_id, j.prompt_id, j.full_prompt, j.status, j.attempts,
    j.image_url, j.notes, j.run_after, j.claimed_by, j.claimed_at, j.created_at, j.updated_at;
`

const QCompleteImageJob = `--sql 5b2775d3-4334-4f10-b9a6-caadac13d319
with done as (
    update image_jobs
    set status = 'completed',
        image_url = $3::text,
        updated_at = $4::timestamptz
    where id = $1::text
      and status = 'in_progress'
      and attempts = $2::int
    returning id, entity_type, entity_id, prompt_id, full_prompt, status, attempts,
        image_url, notes, run_after, claimed_by, claimed_at, created_at, updated_at
),
trip_upd as (
    update trips t
    set image_url = d.image_url,
        image_prompt_id = (select p.id from image_prompts p where p.id = d.prompt_id),
        image_pending = exists (
            select 1 from image_jobs o
            where o.entity_type = d.entity_type and o.entity_id = d.entity_id
              and o.id <> d.id and o.status in ('pending', 'in_progress')
        ),
        updated_at = $4::timestamptz
    from done d
    where d.entity_type = 'trip'
      and t.id = d.entity_id
      and t.image_is_custom = false
    returning t.id
),
segment_upd as (
    update segments s
    set image_url = d.image_url,
        image_prompt_id = (select p.id from image_prompts p where p.id = d.prompt_id),
        image_pending = exists (
            select 1 from image_jobs o
            where o.entity_type = d.entity_type and o.entity_id = d.entity_id
              and o.id <> d.id and o.status in ('pending', 'in_progress')
        ),
        updated_at = $4::timestamptz
    from done d
    where d.entity_type = 'segment'
      and s.id = d.entity_id
      and s.image_is_custom = false
    returning s.id
),
reservation_upd as (
    update reservations r
    set image_url = d.image_url,
        image_prompt_id = (select p.id from image_prompts p where p.id = d.prompt_id),
        image_pending = exists (
            select 1 from image_jobs o
            where o.entity_type = d.entity_type and o.entity_id = d.entity_id
              and o.id <> d.id and o.status in ('pending', 'in_progress')
        ),
        updated_at = $4::timestamptz
    from done d
    where d.entity_type = 'reservation'
      and r.id = d.entity_id
      and r.image_is_custom = false
    returning r.id
)
select d.id, d.entity_type, d.entity_id, d.prompt_id, d.full_prompt, d.status, d.attempts,
    d.image_url, d.notes, d.run_after, d.claimed_by, d.claimed_at, d.created_at, d.updated_at,
    exists (
        select 1 from trip_upd
        union all select 1 from segment_upd
        union all select 1 from reservation_upd
    ) as entity_updated
from done d;
`

const QFailImageJob = `--sql 339122d4-d8a7-4550-a5a4-2bc6a81c8e63
with failed as (
    update image_jobs
    set status = case when attempts < $3::int then 'pending' else 'failed' end,
        run_after = case when attempts < $3::int then $4::timestamptz else run_after end,
        notes = $5::text,
        updated_at = $6::timestamptz
    where id = $1::text
      and status = 'in_progress'
      and attempts = $2::int
    returning id, entity_type, entity_id, prompt_id, full_prompt, status, attempts,
        image_url, notes, run_after, claimed_by, claimed_at, created_at, updated_at
),
trip_clear as (
    update trips t set image_pending = exists (
            select 1 from image_jobs o
            where o.entity_type = f.entity_type and o.entity_id = f.entity_id
              and o.id <> f.id and o.status in ('pending', 'in_progress')
        ), updated_at = $6::timestamptz
    from failed f
    where f.status = 'failed' and f.entity_type = 'trip' and t.id = f.entity_id
    returning t.id
),
segment_clear as (
    update segments s set image_pending = exists (
            select 1 from image_jobs o
            where o.entity_type = f.entity_type and o.entity_id = f.entity_id
              and o.id <> f.id and o.status in ('pending', 'in_progress')
        ), updated_at = $6::timestamptz
    from failed f
    where f.status = 'failed' and f.entity_type = 'segment' and s.id = f.entity_id
    returning s.id
),
reservation_clear as (
    update reservations r set image_pending = exists (
            select 1 from image_jobs o
            where o.entity_type = f.entity_type and o.entity_id = f.entity_id
              and o.id <> f.id and o.status in ('pending', 'in_progress')
        ), updated_at = $6::timestamptz
    from failed f
    where f.status = 'failed' and f.entity_type = 'reservation' and r.id = f.entity_id
    returning r.id
)
select id, entity_type, entity_id, prompt_id, full_prompt, status, attempts,
    image_url, notes, run_after, claimed_by, claimed_at, created_at, updated_at
from failed;
`

const QRequeueStaleImageJobs = `--sql 3734bbc1-fcf1-4928-b9de-e5b55f032b77
with stale as (
    update image_jobs
    set status = case when attempts < $2::int then 'pending' else 'failed' end,
        notes = 'claim by ' || coalesce(claimed_by, 'unknown') || ' went stale'
            || case when notes is null then '' else E'\n' || notes end,
        run_after = $3::timestamptz,
        updated_at = $3::timestamptz
    where status = 'in_progress'
      and claimed_at < $1::timestamptz
    returning id, entity_type, entity_id, prompt_id, full_prompt, status, attempts,
        image_url, notes, run_after, claimed_by, claimed_at, created_at, updated_at
),
trip_clear as (
    update trips t set image_pending = exists (
            select 1 from image_jobs o
            where o.entity_type = f.entity_type and o.entity_id = f.entity_id
              and o.id <> f.id and o.status in ('pending', 'in_progress')
        ), updated_at = $3::timestamptz
    from stale f
    where f.status = 'failed' and f.entity_type = 'trip' and t.id = f.entity_id
    returning t.id
),
segment_clear as (
    update segments s set image_pending = exists (
            select 1 from image_jobs o
            where o.entity_type = f.entity_type and o.entity_id = f.entity_id
              and o.id <> f.id and o.status in ('pending', 'in_progress')
        ), updated_at = $3::timestamptz
    from stale f
    where f.status = 'failed' and f.entity_type = 'segment' and s.id = f.entity_id
    returning s.id
),
reservation_clear as (
    update reservations r set image_pending = exists (
            select 1 from image_jobs o
            where o.entity_type = f.entity_type and o.entity_id = f.entity_id
              and o.id <> f.id and o.status in ('pending', 'in_progress')
        ), updated_at = $3::timestamptz
    from stale f
    where f.status = 'failed' and f.entity_type = 'reservation' and r.id = f.entity_id
    returning r.id
)
select id, entity_type, entity_id, prompt_id, full_prompt, status, attempts,
    image_url, notes, run_after, claimed_by, claimed_at, created_at, updated_at
from stale
order by created_at asc;
`

const QSelectImageJob = `--sql be7f61ab-d436-4625-b9ed-8519bca51dd0
select id, entity_type, entity_id, prompt_id, full_prompt, status, attempts,
    image_url, notes, run_after, claimed_by, claimed_at, created_at, updated_at
from image_jobs
where id = $1::text;
`

const QListImageJobs = `--sql 604130c1-ef70-45c9-a5c0-342f7d528fca
select id, entity_type, entity_id, prompt_id, full_prompt, status, attempts,
    image_url, notes, run_after, claimed_by, claimed_at, created_at, updated_at
from image_jobs
where ($1::text = '' or status = $1::text)
  and ($2::text = '' or entity_type = $2::text)
  and ($3::text = '' or entity_id = $3::text)
order by created_at desc, id desc
limit $4::int;
`

const QCountImageJobsByStatus = `--sql 91751c27-f9c4-4218-a96b-7a33f0b1c1fc
select status, count(*)
from image_jobs
group by status;
`
