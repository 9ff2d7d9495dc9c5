package sqlinline

const QListImagePromptsByCategory = `--sql a4d53004-2949-46ff-90ec-74c360c4e42c
select id, name, category, prompt, style, lightness, created_at, updated_at
from image_prompts
where category = $1::text
order by name asc;
`

const QSelectImagePrompt = `--sql 443f5080-7f5a-4638-9918-6309800078b3
select id, name, category, prompt, style, lightness, created_at, updated_at
from image_prompts
where id = $1::text;
`

const QUpsertImagePrompt = `--sql 953fa56b-c7e9-4072-9eb7-7145b6212ede
insert into image_prompts (id, name, category, prompt, style, lightness, created_at, updated_at)
values ($1::text, $2::text, $3::text, $4::text, $5::text, $6::text, now(), now())
on conflict (name) do update set
    category = excluded.category,
    prompt = excluded.prompt,
    style = excluded.style,
    lightness = excluded.lightness,
    updated_at = now()
returning id, created_at, updated_at;
`
